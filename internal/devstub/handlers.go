package devstub

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"sponsorlink/internal/message"
)

func contextWithUser(ctx context.Context, u authedUser) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, u)
}

func userFromContext(ctx context.Context) (authedUser, bool) {
	u, ok := ctx.Value(ctxUserKey{}).(authedUser)
	return u, ok
}

type uploadResponse struct {
	MediaURL string `json:"mediaUrl"`
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

func (s *Server) uploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Uploads.Add(1)
		user, _ := userFromContext(r.Context())
		if s.artifacts == nil {
			http.Error(w, "uploads disabled", http.StatusServiceUnavailable)
			return
		}
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "invalid multipart payload", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file field required", http.StatusBadRequest)
			return
		}
		defer file.Close()
		mimeType := r.FormValue("mime")
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(header.Filename))
		}
		record, err := s.artifacts.Save(header.Filename, user.ID, mimeType, file)
		if err != nil {
			http.Error(w, "store error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(uploadResponse{
			MediaURL: "/files/" + record.ID,
			Type:     contentType(record.Name, record.Mime),
			FileName: record.Name,
			FileSize: record.Size,
		})
	}
}

func (s *Server) fileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.artifacts == nil {
			http.Error(w, "uploads disabled", http.StatusServiceUnavailable)
			return
		}
		record, rc, err := s.artifacts.Open(chi.URLParam(r, "id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		if record.Mime != "" {
			w.Header().Set("Content-Type", record.Mime)
		}
		_, _ = io.Copy(w, rc)
	}
}

// attachmentsHandler returns the media messages exchanged between the
// authenticated user and ?peer, newest last.
func (s *Server) attachmentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := userFromContext(r.Context())
		peer := r.URL.Query().Get("peer")
		if peer == "" {
			http.Error(w, "peer required", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		attachments := make([]message.Attachment, 0)
		for i, msg := range s.history {
			if !msg.IsMedia() {
				continue
			}
			if !between(msg, user.ID, peer) {
				continue
			}
			attachments = append(attachments, message.Attachment{
				ID:        attachmentID(i),
				Type:      msg.Type,
				MediaURL:  msg.MediaURL,
				FileName:  filepath.Base(msg.MediaURL),
				Sender:    msg.SenderID,
				Receiver:  msg.ReceiverID,
				CreatedAt: msg.Timestamp,
			})
		}
		s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(attachments)
	}
}

func between(msg message.Message, a, b string) bool {
	return (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a)
}

func attachmentID(i int) string {
	return "att-" + strconv.Itoa(i)
}

// contentType maps an uploaded file to a chat message type.
func contentType(name, mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return message.TypeImage
	case strings.HasPrefix(mimeType, "video/"):
		return message.TypeVideo
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return message.TypeImage
	case ".mp4", ".mov", ".webm":
		return message.TypeVideo
	default:
		return message.TypeDocument
	}
}
