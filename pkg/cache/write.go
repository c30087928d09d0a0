package cache

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

// WriteResponse writes resp to w with fully buffered bodies.
func WriteResponse(w http.ResponseWriter, r *http.Request, resp Response) error {
	return writeResponse(w, r, resp, false)
}

// writeResponse writes resp to w. With rangeable set, files are served
// through http.ServeContent so Range and conditional requests work.
func writeResponse(w http.ResponseWriter, r *http.Request, resp Response, rangeable bool) error {
	copyHeader(w.Header(), resp.Header())

	switch res := resp.(type) {
	case *RedirectResponse:
		w.Header().Set("Location", res.Location)
		w.WriteHeader(res.StatusCode())
		return nil
	case *FileResponse:
		return writeFile(w, r, res, rangeable)
	case *StructuredResponse:
		body, err := res.Render()
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", res.Header().Get("Content-Type"))
		return writeBody(w, res.StatusCode(), body)
	case *RawResponse:
		return writeBody(w, res.StatusCode(), res.Body)
	case *StreamResponse:
		defer res.Body.Close()
		w.WriteHeader(res.StatusCode())
		if _, err := io.Copy(w, res.Body); err != nil {
			return fmt.Errorf("stream body: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported response type %T", resp)
	}
}

func writeFile(w http.ResponseWriter, r *http.Request, res *FileResponse, rangeable bool) error {
	f, err := os.Open(res.Path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	if rangeable && res.StatusCode() == http.StatusOK {
		http.ServeContent(w, r, filepath.Base(res.Path), info.ModTime(), f)
		return nil
	}

	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(res.StatusCode())
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	return nil
}

func writeBody(w http.ResponseWriter, status int, body []byte) error {
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for name, values := range src {
		dst[name] = append([]string(nil), values...)
	}
}
