package intake

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadintake/backend/internal/config"
	"leadintake/backend/internal/domain"
	"leadintake/backend/internal/security"
)

func testIntakeConfig() config.IntakeConfig {
	return config.IntakeConfig{
		AttachmentField: "files",
		MaxFiles:        3,
		MaxFileBytes:    100,
		MaxTotalBytes:   150,
		MaxBodyBytes:    1 << 20,
	}
}

type part struct {
	field    string
	filename string
	content  string
}

func multipartRequest(t *testing.T, fields map[string][]string, files []part) *http.Request {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(t, w.WriteField(key, v))
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/contact", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestExtractJSON(t *testing.T) {
	e := NewExtractor(testIntakeConfig(), security.NewAttachmentScreen(), nil)

	t.Run("字段转换为字符串", func(t *testing.T) {
		body := `{"name":"Jo","width_m":6.0,"height_m":2.75,"newsletter":true,"addons":["Lighting","Heater"],"company":null,"meta":{"a":1}}`
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json; charset=utf-8")

		payload, err := e.Extract(req)
		require.NoError(t, err)

		assert.Equal(t, "Jo", payload.Fields["name"])
		assert.Equal(t, "6.0", payload.Fields["width_m"])
		assert.Equal(t, "2.75", payload.Fields["height_m"])
		assert.Equal(t, "true", payload.Fields["newsletter"])
		assert.Equal(t, "Lighting, Heater", payload.Fields["addons"])
		assert.Equal(t, "", payload.Fields["company"])
		assert.Equal(t, `{"a":1}`, payload.Fields["meta"])
		assert.Empty(t, payload.Attachments)
	})

	t.Run("蜜罐字段只接受字符串", func(t *testing.T) {
		body := `{"name":"Jo","email":"jo@example.com","website":false,"url":0}`
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		payload, err := e.Extract(req)
		require.NoError(t, err)

		assert.Equal(t, "", payload.Fields["website"])
		assert.Equal(t, "", payload.Fields["url"])
		assert.False(t, domain.IsHoneypotTripped(payload.Fields))
	})

	t.Run("蜜罐字段填写字符串", func(t *testing.T) {
		body := `{"name":"Jo","email":"jo@example.com","website":"http://spam.example"}`
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		payload, err := e.Extract(req)
		require.NoError(t, err)
		assert.True(t, domain.IsHoneypotTripped(payload.Fields))
	})

	t.Run("无法解析的请求体", func(t *testing.T) {
		for _, body := range []string{`{"name":`, `["a"]`, `null`, ``, `not json`} {
			req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			_, err := e.Extract(req)
			assert.True(t, errors.Is(err, ErrUnparseableBody), "body %q", body)
		}
	})
}

func TestExtractMultipart(t *testing.T) {
	e := NewExtractor(testIntakeConfig(), security.NewAttachmentScreen(), nil)

	t.Run("表单字段与附件", func(t *testing.T) {
		req := multipartRequest(t,
			map[string][]string{"name": {"Jo"}, "addons": {"Lighting", "Heater"}},
			[]part{{"files", "deck.jpg", "\xff\xd8\xff\xe0jpeg"}, {"other", "ignored.txt", "x"}},
		)

		payload, err := e.Extract(req)
		require.NoError(t, err)

		assert.Equal(t, "Jo", payload.Fields["name"])
		assert.Equal(t, "Lighting, Heater", payload.Fields["addons"])
		require.Len(t, payload.Attachments, 1)
		assert.Equal(t, "deck.jpg", payload.Attachments[0].Filename)
		assert.Equal(t, "image/jpeg", payload.Attachments[0].ContentType)
	})

	t.Run("累计大小超限时跳过后续大文件但保留小文件", func(t *testing.T) {
		req := multipartRequest(t, map[string][]string{"name": {"Jo"}}, []part{
			{"files", "a.txt", strings.Repeat("a", 90)},
			{"files", "b.txt", strings.Repeat("b", 90)},
			{"files", "c.txt", strings.Repeat("c", 40)},
		})

		payload, err := e.Extract(req)
		require.NoError(t, err)

		require.Len(t, payload.Attachments, 2)
		assert.Equal(t, "a.txt", payload.Attachments[0].Filename)
		assert.Equal(t, "c.txt", payload.Attachments[1].Filename)
		require.Len(t, payload.Skipped, 1)
		assert.Equal(t, SkippedFile{Filename: "b.txt", Reason: SkipTotalLimit}, payload.Skipped[0])
	})

	t.Run("空文件与超大文件被跳过", func(t *testing.T) {
		req := multipartRequest(t, nil, []part{
			{"files", "empty.txt", ""},
			{"files", "huge.txt", strings.Repeat("h", 101)},
			{"files", "ok.txt", "fine"},
		})

		payload, err := e.Extract(req)
		require.NoError(t, err)

		require.Len(t, payload.Attachments, 1)
		assert.Equal(t, "ok.txt", payload.Attachments[0].Filename)
		assert.ElementsMatch(t, []SkippedFile{
			{Filename: "empty.txt", Reason: SkipEmpty},
			{Filename: "huge.txt", Reason: SkipFileTooLarge},
		}, payload.Skipped)
	})

	t.Run("数量上限", func(t *testing.T) {
		req := multipartRequest(t, nil, []part{
			{"files", "1.txt", "1"},
			{"files", "2.txt", "2"},
			{"files", "3.txt", "3"},
			{"files", "4.txt", "4"},
		})

		payload, err := e.Extract(req)
		require.NoError(t, err)

		assert.Len(t, payload.Attachments, 3)
		require.Len(t, payload.Skipped, 1)
		assert.Equal(t, SkipCountLimit, payload.Skipped[0].Reason)
	})

	t.Run("可执行文件被跳过", func(t *testing.T) {
		req := multipartRequest(t, nil, []part{
			{"files", "setup.exe", "MZ..."},
			{"files", "photo.png", "MZ disguised"},
			{"files", "plan.pdf", "%PDF-1.7"},
		})

		payload, err := e.Extract(req)
		require.NoError(t, err)

		require.Len(t, payload.Attachments, 1)
		assert.Equal(t, "plan.pdf", payload.Attachments[0].Filename)
		assert.Len(t, payload.Skipped, 2)
	})

	t.Run("损坏的 multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("--nope\r\ngarbage"))
		req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")

		_, err := e.Extract(req)
		assert.ErrorIs(t, err, ErrUnparseableBody)
	})

	t.Run("未知类型的请求体", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("name=Jo"))
		req.Header.Set("Content-Type", "text/plain")

		_, err := e.Extract(req)
		assert.ErrorIs(t, err, ErrUnparseableBody)
	})
}

func TestExtractURLEncoded(t *testing.T) {
	e := NewExtractor(testIntakeConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("name=Jo&email=jo%40example.com"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	payload, err := e.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", payload.Fields["email"])
}

func TestClientContextFrom(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Referer", "https://www.sunshadepergolas.com.au/contact")
	req.AddCookie(&http.Cookie{Name: "_fbp", Value: "fb.1.1700000000.123"})

	client := ClientContextFrom(req)
	assert.Equal(t, "203.0.113.7", client.IP)
	assert.Equal(t, "Mozilla/5.0", client.UserAgent)
	assert.Equal(t, "https://www.sunshadepergolas.com.au/contact", client.SourceURL)
	assert.Equal(t, "fb.1.1700000000.123", client.FBP)
	assert.Empty(t, client.FBC)
}

func TestExtractMultipartStaysInMemory(t *testing.T) {
	if testing.Short() {
		t.Skip("large multipart body")
	}

	// 大于旧的固定内存预算（32 MiB）的附件
	size := 33 << 20
	cfg := config.IntakeConfig{
		AttachmentField: "files",
		MaxFiles:        1,
		MaxFileBytes:    int64(size),
		MaxTotalBytes:   int64(size),
		MaxBodyBytes:    int64(size) + 1<<20,
	}
	e := NewExtractor(cfg, security.NewAttachmentScreen(), nil)

	req := multipartRequest(t, map[string][]string{"name": {"Jo"}}, []part{
		{"files", "site.png", strings.Repeat("p", size)},
	})

	payload, err := e.Extract(req)
	require.NoError(t, err)
	require.Len(t, payload.Attachments, 1)
	assert.EqualValues(t, size, payload.Attachments[0].Size())

	// 落盘的附件在解析结束后已被删除，无法再次打开
	fh := req.MultipartForm.File["files"][0]
	f, err := fh.Open()
	require.NoError(t, err)
	defer f.Close()
	_, onDisk := f.(*os.File)
	assert.False(t, onDisk)
}
