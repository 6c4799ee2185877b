package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/schema"
)

const (
	defaultAPIBase  = "https://api.telegram.org"
	longPollSeconds = 50
)

// Telegram implements Transport over the Telegram Bot API using long
// polling. One instance serves one bot token.
type Telegram struct {
	apiBase string
	token   string
	http    *http.Client
	log     pslog.Logger
}

// NewTelegram constructs a Telegram transport.
func NewTelegram(token string, logger pslog.Logger) *Telegram {
	return NewTelegramWithBaseURL(defaultAPIBase, token, logger)
}

// NewTelegramWithBaseURL constructs a transport against an explicit API
// base URL. Used by tests.
func NewTelegramWithBaseURL(apiBase, token string, logger pslog.Logger) *Telegram {
	return &Telegram{
		apiBase: apiBase,
		token:   token,
		// The client timeout must exceed the long-poll window.
		http: &http.Client{Timeout: (longPollSeconds + 10) * time.Second},
		log:  logger,
	}
}

type tgUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID        int64  `json:"id"`
			Username  string `json:"username"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text     string `json:"text"`
		Caption  string `json:"caption"`
		Document *struct {
			FileID   string `json:"file_id"`
			FileName string `json:"file_name"`
			FileSize int64  `json:"file_size"`
		} `json:"document"`
	} `json:"message"`
}

type tgResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Updates long-polls getUpdates and converts messages to Incoming events.
// Poll errors are logged and retried with a short backoff; the loop only
// stops when ctx is cancelled.
func (t *Telegram) Updates(ctx context.Context) <-chan Incoming {
	out := make(chan Incoming)
	go func() {
		defer close(out)
		var offset int64
		for {
			updates, err := t.getUpdates(ctx, offset)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if t.log != nil {
					t.log.Warn("telegram poll failed", "err", err)
				}
				select {
				case <-time.After(3 * time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, u := range updates {
				if u.UpdateID >= offset {
					offset = u.UpdateID + 1
				}
				inc, ok := toIncoming(u)
				if !ok {
					continue
				}
				select {
				case out <- inc:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func toIncoming(u tgUpdate) (Incoming, bool) {
	m := u.Message
	if m == nil || m.From == nil {
		return Incoming{}, false
	}
	inc := Incoming{
		Principal: schema.ChatID(strconv.FormatInt(m.Chat.ID, 10)),
		Username:  m.From.Username,
		Text:      m.Text,
	}
	inc.DisplayName = m.From.FirstName
	if m.From.LastName != "" {
		inc.DisplayName += " " + m.From.LastName
	}
	if inc.DisplayName == "" {
		inc.DisplayName = m.From.Username
	}
	if m.Document != nil {
		inc.File = &IncomingFile{
			ID:   m.Document.FileID,
			Name: m.Document.FileName,
			Size: m.Document.FileSize,
		}
		if inc.Text == "" {
			inc.Text = m.Caption
		}
	}
	return inc, true
}

func (t *Telegram) getUpdates(ctx context.Context, offset int64) ([]tgUpdate, error) {
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(longPollSeconds))
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}
	raw, err := t.call(ctx, "getUpdates", params)
	if err != nil {
		return nil, err
	}
	var updates []tgUpdate
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// Reply sends text with an optional reply keyboard. Rows of buttons are
// resized to fit and persist until replaced.
func (t *Telegram) Reply(ctx context.Context, to schema.ChatID, text string, keyboard [][]string) error {
	params := url.Values{}
	params.Set("chat_id", string(to))
	params.Set("text", text)
	if len(keyboard) > 0 {
		rows := make([][]map[string]string, 0, len(keyboard))
		for _, row := range keyboard {
			buttons := make([]map[string]string, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, map[string]string{"text": label})
			}
			rows = append(rows, buttons)
		}
		markup, err := json.Marshal(map[string]any{
			"keyboard":        rows,
			"resize_keyboard": true,
		})
		if err != nil {
			return err
		}
		params.Set("reply_markup", string(markup))
	}
	_, err := t.call(ctx, "sendMessage", params)
	return err
}

// SendFile uploads a local file as a document with a caption.
func (t *Telegram) SendFile(ctx context.Context, to schema.ChatID, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", string(to)); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendDocument"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := t.http.Do(req)
	if err != nil {
		return &schema.TransportError{Op: "sendDocument", Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeStatus(resp, "sendDocument", nil)
}

// OpenFile resolves the file's download path and streams its content.
func (t *Telegram) OpenFile(ctx context.Context, file IncomingFile) (io.ReadCloser, error) {
	params := url.Values{}
	params.Set("file_id", file.ID)
	raw, err := t.call(ctx, "getFile", params)
	if err != nil {
		return nil, err
	}
	var info struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/file/bot%s/%s", t.apiBase, t.token, info.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, &schema.TransportError{Op: "file download", Detail: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &schema.TransportError{Op: "file download", Detail: "status " + resp.Status}
	}
	return resp.Body, nil
}

func (t *Telegram) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
}

func (t *Telegram) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), bytes.NewBufferString(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, &schema.TransportError{Op: method, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()
	var raw json.RawMessage
	if err := decodeStatus(resp, method, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeStatus(resp *http.Response, method string, out *json.RawMessage) error {
	var envelope tgResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return &schema.TransportError{Op: method, Detail: "bad response: " + err.Error()}
	}
	if !envelope.OK {
		return &schema.TransportError{Op: method, Detail: envelope.Description}
	}
	if out != nil {
		*out = envelope.Result
	}
	return nil
}
