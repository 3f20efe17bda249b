package service

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vipclub/access-server/internal/config"
	apperrors "github.com/vipclub/access-server/internal/errors"
	"github.com/vipclub/access-server/internal/metrics"
)

const sniffLen = 512

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

type UploadedFile struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
}

// UploadService stores member images on local disk under dir.
type UploadService struct {
	dir     string
	baseURL string
	maxSize int64
}

func NewUploadService(dir, baseURL string) (*UploadService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &UploadService{dir: dir, baseURL: baseURL, maxSize: config.MaxUploadFileSize}, nil
}

type checkedUpload struct {
	header      *multipart.FileHeader
	contentType string
}

// Save validates every file first so a rejected file stores nothing.
func (s *UploadService) Save(files []*multipart.FileHeader) ([]UploadedFile, error) {
	if len(files) == 0 {
		return nil, apperrors.MissingRequired("files")
	}

	checked := make([]checkedUpload, 0, len(files))
	for _, fh := range files {
		contentType, err := s.check(fh)
		if err != nil {
			return nil, err
		}
		checked = append(checked, checkedUpload{header: fh, contentType: contentType})
	}

	saved := make([]UploadedFile, 0, len(checked))
	for _, c := range checked {
		file, err := s.store(c)
		if err != nil {
			for _, done := range saved {
				_ = os.Remove(filepath.Join(s.dir, done.Name))
			}
			log.Error().Err(err).Str("file", c.header.Filename).Msg("failed to store upload")
			return nil, apperrors.Internal("Failed to upload image. Please try again.")
		}
		saved = append(saved, *file)
	}

	metrics.UploadedFiles.Add(float64(len(saved)))
	return saved, nil
}

func (s *UploadService) check(fh *multipart.FileHeader) (string, error) {
	if fh.Size > s.maxSize {
		return "", apperrors.FileTooLarge(fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return "", apperrors.InvalidInput("files", "unreadable upload")
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", apperrors.InvalidInput("files", "unreadable upload")
	}

	contentType := http.DetectContentType(head[:n])
	if !strings.HasPrefix(contentType, "image/") {
		return "", apperrors.UnsupportedMedia(fh.Filename)
	}
	return contentType, nil
}

func (s *UploadService) store(c checkedUpload) (*UploadedFile, error) {
	src, err := c.header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	ext, ok := imageExtensions[c.contentType]
	if !ok {
		ext = strings.ToLower(filepath.Ext(c.header.Filename))
	}
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, io.LimitReader(src, s.maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if written > s.maxSize {
		return nil, fmt.Errorf("%s grew past the size limit", c.header.Filename)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return nil, err
	}

	return &UploadedFile{
		Name:        name,
		URL:         s.baseURL + "/uploads/" + name,
		Size:        written,
		ContentType: c.contentType,
	}, nil
}
