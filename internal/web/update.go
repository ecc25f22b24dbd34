package web

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/irrigation-relay/internal/status"
)

// StagedName is the file name of the staged firmware image in the update dir.
const StagedName = "staged.bin"

// multipartSlack allows for multipart framing on top of the image cap.
const multipartSlack = 64 << 10

var (
	errTooLarge = errors.New("image exceeds size limit")
	errEmpty    = errors.New("empty image")
	errNoField  = errors.New(`missing "firmware" field`)
)

type updateResponse struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	SHA256  string `json:"sha256"`
	Subject string `json:"subject"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// handleUpdate streams the uploaded image into the update dir. It accepts
// either a multipart form with a "firmware" field or a raw request body.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	src, err := s.imageSource(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	info, err := stage(s.update.Dir, src, s.update.MaxBytes)
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, errTooLarge), errors.As(err, &maxErr):
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", errTooLarge.Error())
		return
	case errors.Is(err, errEmpty):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	case err != nil:
		log.Printf("web: stage firmware: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not stage image")
		return
	}

	info.Subject = subjectFromContext(r.Context())
	s.tracker.SetFirmware(info)
	log.Printf("web: staged firmware %s (%d bytes, sha256 %s) from %s", info.Path, info.Size, info.SHA256, info.Subject)

	writeJSON(w, http.StatusOK, updateResponse{
		Path:    info.Path,
		Size:    info.Size,
		SHA256:  info.SHA256,
		Subject: info.Subject,
	})
}

func (s *Server) imageSource(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return http.MaxBytesReader(w, r.Body, s.update.MaxBytes+1), nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.update.MaxBytes+multipartSlack)
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoField
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "firmware" {
			return part, nil
		}
		part.Close()
	}
}

// stage copies src into dir via a temp file, fsyncs it and renames it into
// place. Nothing is left behind on failure.
func stage(dir string, src io.Reader, maxBytes int64) (status.FirmwareInfo, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return status.FirmwareInfo{}, fmt.Errorf("create update dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return status.FirmwareInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(src, maxBytes+1))
	if err != nil {
		tmp.Close()
		return status.FirmwareInfo{}, fmt.Errorf("write image: %w", err)
	}
	if n > maxBytes {
		tmp.Close()
		return status.FirmwareInfo{}, errTooLarge
	}
	if n == 0 {
		tmp.Close()
		return status.FirmwareInfo{}, errEmpty
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return status.FirmwareInfo{}, fmt.Errorf("sync image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return status.FirmwareInfo{}, fmt.Errorf("close image: %w", err)
	}

	dst := filepath.Join(dir, StagedName)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return status.FirmwareInfo{}, fmt.Errorf("rename image: %w", err)
	}

	return status.FirmwareInfo{
		Path:     dst,
		Size:     n,
		SHA256:   hex.EncodeToString(h.Sum(nil)),
		StagedAt: time.Now(),
	}, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, errCode, msg string) {
	var e apiError
	e.Error.Code = errCode
	e.Error.Message = msg
	writeJSON(w, code, e)
}
