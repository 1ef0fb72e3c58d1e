package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"npcs-desk/utils"

	"github.com/dustin/go-humanize"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
	"go.uber.org/zap"
)

var (
	ErrNoDICOMFiles = errors.New("no DICOM files found in dataset directory")
	ErrNotDirectory = errors.New("dataset path is not a directory")
)

// File is one file of a dataset, Rel is relative to the dataset root and
// always uses forward slashes.
type File struct {
	Path string `json:"-"`
	Rel  string `json:"rel"`
	Size int64  `json:"size"`
}

type Dataset struct {
	ID         string   `json:"dataset_id"`
	Path       string   `json:"path"`
	Files      []File   `json:"-"`
	TotalSize  int64    `json:"total_size"`
	DICOMCount int      `json:"dicom_count"`
	StudyUIDs  []string `json:"study_uids"`
	Modalities []string `json:"modalities"`
}

// Summary example: "12 files, 3.4 MB, 1 study (MR)".
func (ds *Dataset) Summary() string {
	studies := "studies"
	if len(ds.StudyUIDs) == 1 {
		studies = "study"
	}
	s := fmt.Sprintf("%s files, %s, %d %s",
		humanize.Comma(int64(len(ds.Files))), humanize.Bytes(uint64(ds.TotalSize)), len(ds.StudyUIDs), studies)
	if len(ds.Modalities) > 0 {
		s += " (" + strings.Join(ds.Modalities, ", ") + ")"
	}
	return s
}

type Scanner struct {
	logger *zap.Logger
}

func NewScanner(logger *zap.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan walks a dataset directory and reads the header of every file.
// Hidden files are ignored and files that are not DICOM are kept for
// upload but not counted.
func (s *Scanner) Scan(path string) (*Dataset, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}

	ds := &Dataset{
		ID:   utils.DirBaseName(path),
		Path: path,
	}
	studies := make(map[string]bool)
	modalities := make(map[string]bool)

	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(fi.Name(), ".") && p != path {
			if fi.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		ds.Files = append(ds.Files, File{Path: p, Rel: filepath.ToSlash(rel), Size: fi.Size()})
		ds.TotalSize += fi.Size()

		parsed, err := dicom.ParseFile(p, nil, dicom.SkipPixelData())
		if err != nil {
			s.logger.Debug("not a DICOM file", zap.String("file", rel), zap.Error(err))
			return nil
		}
		ds.DICOMCount++
		for _, v := range headerStrings(parsed, tag.StudyInstanceUID) {
			studies[v] = true
		}
		for _, v := range headerStrings(parsed, tag.Modality) {
			modalities[v] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ds.DICOMCount == 0 {
		return nil, ErrNoDICOMFiles
	}
	ds.StudyUIDs = sortedKeys(studies)
	ds.Modalities = sortedKeys(modalities)

	s.logger.Info("dataset scanned",
		zap.String("dataset_id", ds.ID),
		zap.String("summary", ds.Summary()))
	return ds, nil
}

func headerStrings(parsed dicom.Dataset, t tag.Tag) []string {
	elem, err := parsed.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}
	values, ok := elem.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	ret := make([]string, 0, len(values))
	for _, v := range values {
		// UI values are padded with NUL to an even length
		if v = strings.Trim(v, " \x00"); v != "" {
			ret = append(ret, v)
		}
	}
	return ret
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
