package content

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/ecomops/mailsync/provider"
)

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

type fakeProvider struct {
	attachments map[string][]byte
	fetched     int
}

func (f *fakeProvider) ListAddedSince(ctx context.Context, account string, start uint64) ([]string, error) {
	return nil, nil
}

func (f *fakeProvider) GetMessage(ctx context.Context, account, messageID string) (*provider.Message, error) {
	return nil, provider.ErrMessageNotFound
}

func (f *fakeProvider) GetAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error) {
	f.fetched++
	data, ok := f.attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("no such attachment %s", attachmentID)
	}
	return data, nil
}

func (f *fakeProvider) LatestPosition(ctx context.Context, account string) (uint64, error) {
	return 0, nil
}

type memBlobStore struct {
	puts map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{puts: make(map[string][]byte)}
}

func (s *memBlobStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if _, ok := s.puts[name]; !ok {
		s.puts[name] = data
	}
	return "/store/" + name, nil
}

func newReconstructor() (*Reconstructor, *fakeProvider, *memBlobStore) {
	p := &fakeProvider{attachments: make(map[string][]byte)}
	b := newMemBlobStore()
	return NewReconstructor(p, b), p, b
}

func alternativeMessage(plain, html string) *provider.Message {
	return &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "multipart/alternative",
			Parts: []*provider.Part{
				{MimeType: "text/plain", Data: b64(plain)},
				{MimeType: "text/html", Data: b64(html)},
			},
		},
	}
}

func TestReconstruct_PrefersHTMLExactlyOnce(t *testing.T) {
	r, _, _ := newReconstructor()
	msg := alternativeMessage("hello world", "<p>hello world</p>")

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if c.BodyHTML != "<p>hello world</p>" {
		t.Fatalf("BodyHTML = %q", c.BodyHTML)
	}
	// The alternative encodings must never be concatenated.
	if n := strings.Count(c.BodyHTML, "hello world"); n != 1 {
		t.Fatalf("body contains the paragraph %d times, want 1", n)
	}
}

func TestReconstruct_PlainTextIsEscapedAndWrapped(t *testing.T) {
	r, _, _ := newReconstructor()
	msg := &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "text/plain",
			Data:     b64(`5 < 6 & "quoted" > 'x'`),
		},
	}

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	want := "<pre>5 &lt; 6 &amp; &quot;quoted&quot; &gt; &#39;x&#39;</pre>"
	if c.BodyHTML != want {
		t.Fatalf("BodyHTML = %q, want %q", c.BodyHTML, want)
	}
}

func TestReconstruct_PlaceholderWhenNoText(t *testing.T) {
	r, _, _ := newReconstructor()
	msg := &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "multipart/mixed",
			Parts: []*provider.Part{
				{MimeType: "application/pdf", Filename: "doc.pdf", AttachmentID: "att1", Size: 10},
			},
		},
	}

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if c.BodyHTML != PlaceholderBody {
		t.Fatalf("BodyHTML = %q, want placeholder", c.BodyHTML)
	}
}

func TestReconstruct_EmptyHTMLFallsBackToPlain(t *testing.T) {
	r, _, _ := newReconstructor()
	msg := alternativeMessage("plain body", "   ")

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if !strings.Contains(c.BodyHTML, "plain body") {
		t.Fatalf("BodyHTML = %q, want plain fallback", c.BodyHTML)
	}
}

func TestReconstruct_CollectsNestedAttachments(t *testing.T) {
	r, _, _ := newReconstructor()
	msg := &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "multipart/mixed",
			Parts: []*provider.Part{
				{
					MimeType: "multipart/alternative",
					Parts: []*provider.Part{
						{MimeType: "text/html", Data: b64("<p>hi</p>")},
					},
				},
				{MimeType: "application/pdf", Filename: "claim.pdf", AttachmentID: "att1", Size: 1234},
				{
					MimeType: "multipart/mixed",
					Parts: []*provider.Part{
						{MimeType: "text/csv", Filename: "data.csv", AttachmentID: "att2", Size: 99},
					},
				},
			},
		},
	}

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if len(c.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2: %+v", len(c.Attachments), c.Attachments)
	}
	if c.Attachments[0].Filename != "claim.pdf" || c.Attachments[0].Handle != "att1" {
		t.Errorf("unexpected first attachment: %+v", c.Attachments[0])
	}
	if c.Attachments[1].Filename != "data.csv" || c.Attachments[1].Size != 99 {
		t.Errorf("unexpected second attachment: %+v", c.Attachments[1])
	}
}

func TestReconstruct_InlineImageMapping(t *testing.T) {
	r, p, b := newReconstructor()
	p.attachments["att-logo"] = []byte("PNGDATA")
	msg := &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "multipart/related",
			Parts: []*provider.Part{
				{MimeType: "text/html", Data: b64(`<img src="cid:logo1">`)},
				{
					MimeType:     "image/png",
					Filename:     "logo.png",
					AttachmentID: "att-logo",
					Headers:      []provider.Header{{Name: "Content-ID", Value: "<logo1>"}},
				},
			},
		},
	}

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}

	res, ok := c.Inline["logo1"]
	if !ok {
		t.Fatalf("inline mapping missing logo1: %+v", c.Inline)
	}
	if string(res.Data) != "PNGDATA" {
		t.Errorf("inline data = %q", res.Data)
	}
	wantName := "attachments/Attmtreceivedu1_m1_logo.png"
	if _, ok := b.puts[wantName]; !ok {
		t.Errorf("blob store names = %v, want %s", b.puts, wantName)
	}
	if res.Location != "/store/"+wantName {
		t.Errorf("Location = %q", res.Location)
	}

	// The body keeps the cid reference untouched; substitution is the
	// renderers' second pass.
	if !strings.Contains(c.BodyHTML, "cid:logo1") {
		t.Errorf("BodyHTML = %q, cid reference should be untouched", c.BodyHTML)
	}
	if got := c.BodyWithLocations(); !strings.Contains(got, res.Location) {
		t.Errorf("BodyWithLocations() = %q, want %q substituted", got, res.Location)
	}
}

func TestReconstruct_NonImageFileIsNotInline(t *testing.T) {
	r, _, _ := newReconstructor()
	msg := &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "multipart/mixed",
			Parts: []*provider.Part{
				{MimeType: "text/html", Data: b64("<p>hi</p>")},
				{
					MimeType:     "application/pdf",
					Filename:     "doc.pdf",
					AttachmentID: "att1",
					Headers:      []provider.Header{{Name: "Content-ID", Value: "<doc1>"}},
				},
			},
		},
	}

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if len(c.Inline) != 0 {
		t.Fatalf("Inline = %+v, want empty", c.Inline)
	}
}

func TestReconstruct_BrokenInlineImageDoesNotFail(t *testing.T) {
	r, _, _ := newReconstructor() // provider has no attachment bytes
	msg := &provider.Message{
		ID: "m1",
		Payload: &provider.Part{
			MimeType: "multipart/related",
			Parts: []*provider.Part{
				{MimeType: "text/html", Data: b64("<p>hi</p>")},
				{
					MimeType:     "image/png",
					Filename:     "logo.png",
					AttachmentID: "missing",
					Headers:      []provider.Header{{Name: "Content-ID", Value: "<logo1>"}},
				},
			},
		},
	}

	c, err := r.Reconstruct(context.Background(), "u1@example.com", msg)
	if err != nil {
		t.Fatalf("Reconstruct() error = %v", err)
	}
	if len(c.Inline) != 0 {
		t.Fatalf("Inline = %+v, want empty after failed materialisation", c.Inline)
	}
	if len(c.Attachments) != 1 {
		t.Fatalf("the broken image should still be listed as an attachment")
	}
}

func TestBlobName_Sanitises(t *testing.T) {
	got := BlobName("u1@example.com", "m9", "inv oice/№7.pdf")
	want := "attachments/Attmtreceivedu1_m9_inv_oice__7.pdf"
	if got != want {
		t.Fatalf("BlobName() = %q, want %q", got, want)
	}
}

func TestEscapeHTML(t *testing.T) {
	got := EscapeHTML(`<b>&"'</b>`)
	want := "&lt;b&gt;&amp;&quot;&#39;&lt;/b&gt;"
	if got != want {
		t.Fatalf("EscapeHTML() = %q, want %q", got, want)
	}
}
