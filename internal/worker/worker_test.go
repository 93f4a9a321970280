package worker

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/executor"
	"github.com/me/ilcdirac/internal/report"
	"github.com/me/ilcdirac/internal/storage"
	"github.com/me/ilcdirac/internal/workflow"
	"github.com/me/ilcdirac/pkg/model"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestRunner(t *testing.T, reg *storage.Registry) (*Runner, *report.Memory) {
	t.Helper()
	mem := report.NewMemory()
	logger := slog.New(slog.DiscardHandler)
	r := NewRunner(Deps{
		Engine:   execution.NewEngine(execution.Config{Logger: logger}),
		Registry: executor.NewRegistry(executor.Deps{Storage: reg, Logger: logger}),
		Storage:  reg,
		Report:   mem,
		WorkDir:  t.TempDir(),
		Logger:   logger,
	})
	return r, mem
}

func TestRunner_TwoStepsAndUpload(t *testing.T) {
	src := t.TempDir()
	produce := writeScript(t, src, "produce.sh", `echo "producing"; echo data > result.txt`)
	check := writeScript(t, src, "check.sh", `test -f result.txt && echo "found result"`)

	b := workflow.NewBuilder("chain")
	if _, err := b.AddApplicationScript(workflow.ApplicationScriptOptions{AppName: "produce", Version: "1", Script: produce}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddApplicationScript(workflow.ApplicationScriptOptions{AppName: "check", Version: "1", Script: check}); err != nil {
		t.Fatal(err)
	}
	if err := b.SetOutputData([]string{"result.txt"}, []string{"LOCAL-SE"}, "tests"); err != nil {
		t.Fatal(err)
	}

	seRoot := t.TempDir()
	se, _ := storage.NewLocalElement("LOCAL-SE", "LCG.Local.ch", seRoot)
	sreg := storage.NewRegistry(nil)
	sreg.Register(se)

	r, mem := newTestRunner(t, sreg)
	res, err := r.Run(context.Background(), b.Workflow(), Job{ID: "100", Owner: "alice"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.OK() {
		t.Fatalf("job failed: %v", res.Err)
	}
	if len(res.Steps) != 2 {
		t.Fatalf("ran %d steps, want 2", len(res.Steps))
	}
	lfn := "/ilc/user/a/alice/tests/result.txt"
	if _, err := os.Stat(filepath.Join(seRoot, lfn)); err != nil {
		t.Errorf("output not uploaded: %v", err)
	}
	if v, _ := mem.Parameter("100", executor.UploadedOutputDataParam); v != lfn {
		t.Errorf("uploaded = %q", v)
	}
	statuses := mem.Statuses("100")
	if statuses[0] != StatusStaging || statuses[len(statuses)-1] != StatusFinished {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	src := t.TempDir()
	fail := writeScript(t, src, "fail.sh", `echo "about to fail"; exit 3`)
	never := writeScript(t, src, "never.sh", `echo ran > ran.txt`)

	b := workflow.NewBuilder("failing")
	b.AddApplicationScript(workflow.ApplicationScriptOptions{AppName: "fail", Version: "1", Script: fail})
	b.AddApplicationScript(workflow.ApplicationScriptOptions{AppName: "never", Version: "1", Script: never})

	r, mem := newTestRunner(t, nil)
	res, err := r.Run(context.Background(), b.Workflow(), Job{ID: "101"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OK() || !model.IsCode(res.Err, model.ErrApplicationFailed) {
		t.Fatalf("expected APPLICATION_FAILED, got %v", res.Err)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("ran %d steps, want 1", len(res.Steps))
	}
	if _, err := os.Stat(filepath.Join(res.WorkDir, "ran.txt")); !os.IsNotExist(err) {
		t.Error("second step should not run")
	}
	joined := strings.Join(mem.Statuses("101"), "\n")
	if !strings.Contains(joined, "exited With Status 3") {
		t.Errorf("statuses = %v", mem.Statuses("101"))
	}
}

func TestRunner_IgnoreApplicationErrors(t *testing.T) {
	src := t.TempDir()
	fail := writeScript(t, src, "fail.sh", `echo "about to fail"; exit 3`)
	b := workflow.NewBuilder("tolerant")
	b.AddApplicationScript(workflow.ApplicationScriptOptions{AppName: "fail", Version: "1", Script: fail})
	b.SetIgnoreApplicationErrors(true)

	r, _ := newTestRunner(t, nil)
	res, err := r.Run(context.Background(), b.Workflow(), Job{ID: "102"})
	if err != nil || !res.OK() {
		t.Fatalf("expected success, got %v / %v", err, res.Err)
	}
}

func TestRunner_MissingSandboxFile(t *testing.T) {
	wf := &model.Workflow{Name: "x", InputSandbox: []string{filepath.Join(t.TempDir(), "gone.steer")}}
	r, _ := newTestRunner(t, nil)
	res, err := r.Run(context.Background(), wf, Job{ID: "103"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !model.IsCode(res.Err, model.ErrMissingInputFile) {
		t.Fatalf("expected MISSING_INPUT_FILE, got %v", res.Err)
	}
}

func TestSandbox_LFNNeedsStorage(t *testing.T) {
	err := NewSandbox(nil).StageIn(context.Background(), "LFN:/ilc/prod/a.slcio", t.TempDir())
	if err == nil {
		t.Fatal("expected error without storage elements")
	}
}

func TestTLSConfig_Default(t *testing.T) {
	cfg, err := TLSConfig{}.ClientConfig()
	if err != nil || cfg != nil {
		t.Fatalf("ClientConfig = %v, %v", cfg, err)
	}
	if _, err := (TLSConfig{CACertPath: "/nonexistent"}).ClientConfig(); err == nil {
		t.Fatal("expected error for missing CA file")
	}
	if _, err := (TLSConfig{CADir: t.TempDir()}).ClientConfig(); err == nil {
		t.Fatal("expected error for empty CA directory")
	}
}

// writeProxy writes a self-signed certificate and its key into one PEM file,
// laid out like a grid proxy.
func writeProxy(t *testing.T, path string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ilc-prod proxy"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: der})
	pem.Encode(&buf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestTLSConfig_GridTrustAndProxy(t *testing.T) {
	dir := t.TempDir()
	proxy := filepath.Join(dir, "x509up_u500")
	writeProxy(t, proxy)

	caDir := filepath.Join(dir, "certificates")
	os.Mkdir(caDir, 0o755)
	data, _ := os.ReadFile(proxy)
	os.WriteFile(filepath.Join(caDir, "a1b2c3d4.0"), data, 0o644)
	os.WriteFile(filepath.Join(caDir, "a1b2c3d4.signing_policy"), []byte("access_id_CA X509"), 0o644)

	cfg, err := TLSConfig{CADir: caDir, ProxyPath: proxy}.ClientConfig()
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}
	if cfg.RootCAs == nil || len(cfg.Certificates) != 1 {
		t.Errorf("config = %+v", cfg)
	}
	if _, err := (TLSConfig{ProxyPath: filepath.Join(caDir, "a1b2c3d4.signing_policy")}).ClientConfig(); err == nil {
		t.Error("expected error for a proxy without key")
	}
}
