package execution

import (
	"fmt"
	"hash/adler32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/me/ilcdirac/pkg/model"
)

// Catalog limits on output names.
const (
	MaxFileNameLength = 127
	MaxLFNLength      = 383
)

// Output spec keys.
const (
	OutputFileKey   = "outputFile"
	OutputDataSEKey = "outputDataSE"
	OutputPathKey   = "outputPath"
	OutputTypeKey   = "outputDataFileType"
)

// GetCandidateFiles matches each declared output with its LFN (by file
// name) and keeps the files present in workDir. Every output must name its
// file, storage element and path. A missing local file is
// dropped when ignoreMissing is set and an error otherwise.
func GetCandidateFiles(outputs []map[string]string, lfns []string, workDir string, ignoreMissing bool) (map[string]*model.FileMetadata, error) {
	byName := make(map[string]string, len(lfns))
	for _, lfn := range lfns {
		byName[filepath.Base(lfn)] = lfn
	}

	candidates := make(map[string]*model.FileMetadata)
	for i, out := range outputs {
		name, ok := out[OutputFileKey]
		if !ok || name == "" {
			return nil, malformedOutput(i, OutputFileKey, out)
		}
		se, ok := out[OutputDataSEKey]
		if !ok || se == "" {
			return nil, malformedOutput(i, OutputDataSEKey, out)
		}
		// The path may be empty but must be declared.
		if _, ok := out[OutputPathKey]; !ok {
			return nil, malformedOutput(i, OutputPathKey, out)
		}
		lfn, ok := byName[filepath.Base(name)]
		if !ok {
			return nil, model.NewJobError(model.ErrMalformedOutputSpec, "GetCandidateFiles",
				fmt.Sprintf("no LFN for output file %s", name), map[string]any{"outputFile": name})
		}
		if err := CheckCatalogNames(filepath.Base(name), lfn); err != nil {
			return nil, err
		}

		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, name)
		}
		if _, err := os.Stat(path); err != nil {
			if ignoreMissing {
				continue
			}
			return nil, model.NewJobError(model.ErrApplicationFailed, "GetCandidateFiles",
				fmt.Sprintf("output data not found: %s", name), map[string]any{"outputFile": name})
		}
		candidates[filepath.Base(name)] = &model.FileMetadata{
			LFN:        lfn,
			Path:       path,
			WorkflowSE: se,
			Type:       out[OutputTypeKey],
		}
	}
	return candidates, nil
}

// CheckCatalogNames enforces the catalog length limits on a file name and
// its LFN.
func CheckCatalogNames(fileName, lfn string) error {
	if len(fileName) > MaxFileNameLength {
		return model.NewJobError(model.ErrCatalogConstraint, "CheckCatalogNames",
			fmt.Sprintf("file name longer than %d characters", MaxFileNameLength),
			map[string]any{"fileName": fileName, "length": len(fileName)})
	}
	if len(lfn) > MaxLFNLength {
		return model.NewJobError(model.ErrCatalogConstraint, "CheckCatalogNames",
			fmt.Sprintf("LFN longer than %d characters", MaxLFNLength),
			map[string]any{"lfn": lfn, "length": len(lfn)})
	}
	return nil
}

func malformedOutput(i int, key string, out map[string]string) error {
	args := map[string]any{"index": i, "missing": key}
	for k, v := range out {
		args[k] = v
	}
	return model.NewJobError(model.ErrMalformedOutputSpec, "GetCandidateFiles",
		fmt.Sprintf("output %d has no %s", i, key), args)
}

// GetFileMetadata completes each candidate with size, adler32 checksum and
// a GUID. Candidates are returned sorted by file name.
func GetFileMetadata(candidates map[string]*model.FileMetadata) ([]*model.FileMetadata, error) {
	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]*model.FileMetadata, 0, len(names))
	for _, name := range names {
		c := candidates[name]
		switch {
		case c.Path == "":
			return nil, metadataMissing(name, "path")
		case c.LFN == "":
			return nil, metadataMissing(name, "lfn")
		case c.WorkflowSE == "":
			return nil, metadataMissing(name, "workflowSE")
		}

		size, sum, err := Adler32File(c.Path)
		if err != nil {
			return nil, fmt.Errorf("checksum %s: %w", name, err)
		}
		meta := *c
		meta.Size = size
		meta.Checksum = sum
		meta.GUID = strings.ToUpper(uuid.NewString())
		result = append(result, &meta)
	}
	return result, nil
}

func metadataMissing(name, field string) error {
	return model.NewJobError(model.ErrMalformedOutputSpec, "GetFileMetadata",
		fmt.Sprintf("%s has no %s", name, field), map[string]any{"file": name, "missing": field})
}

// Adler32File returns the size and hex adler32 checksum of a file.
func Adler32File(path string) (int64, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := adler32.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", err
	}
	return n, fmt.Sprintf("%08x", h.Sum32()), nil
}
