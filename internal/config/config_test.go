package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWorkerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.yaml")
	os.WriteFile(path, []byte(`
work_dir: /scratch/job
software:
  local_area: /opt/ilc
  shared_area: /cvmfs/ilc
  tarballs:
    x86_64-slc5-gcc43-opt:
      marlin:
        v0111Prod: MarlinReco_v0111Prod.tgz
detector_mirrors:
  - http://www.lcsim.org/detectors/
storage_elements:
  - name: CERN-SRM
    type: s3
    bucket: ilc-data
    region: eu-west-1
    site: LCG.CERN.ch
report:
  url: http://localhost:8080
event_patterns:
  Marlin: ["^Run"]
`), 0o644)

	cfg, err := LoadWorkerConfig(path)
	if err != nil {
		t.Fatalf("LoadWorkerConfig: %v", err)
	}
	if cfg.Platform != DefaultPlatform {
		t.Errorf("Platform = %q, want default", cfg.Platform)
	}
	if cfg.Software.Tarballs["x86_64-slc5-gcc43-opt"]["marlin"]["v0111Prod"] != "MarlinReco_v0111Prod.tgz" {
		t.Errorf("tarballs = %+v", cfg.Software.Tarballs)
	}
	if len(cfg.StorageElements) != 1 || cfg.StorageElements[0].Bucket != "ilc-data" {
		t.Errorf("storage elements = %+v", cfg.StorageElements)
	}
	if got := cfg.EventPatterns["Marlin"]; len(got) != 1 || got[0] != "^Run" {
		t.Errorf("Marlin patterns = %v", got)
	}
	if cfg.Report.URL != "http://localhost:8080" {
		t.Errorf("report url = %q", cfg.Report.URL)
	}
}

func TestLoadWorkerConfig_Errors(t *testing.T) {
	if _, err := LoadWorkerConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("storage_elements:\n  - type: local\n"), 0o644)
	if _, err := LoadWorkerConfig(path); err == nil {
		t.Error("unnamed storage element: expected error")
	}
}
