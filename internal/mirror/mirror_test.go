package mirror

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/getsentry/symx/internal/objstore"
)

func TestSourceKey(t *testing.T) {
	s := Source{Domain: "ota", Platform: "ios", Version: "17.0", Build: "21A326", FileName: "x.zip"}
	want := "mirror/ota/ios/17.0/21A326/x.zip"
	if got := s.Key(); got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestMirrorVerifiesAndUploads(t *testing.T) {
	body := []byte("payload-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	store := objstore.NewMemStore()
	scratch := t.TempDir()
	m := &Mirrorer{Store: store, Downloader: &Downloader{}, ScratchDir: scratch}

	sum := sha1Sum(body)
	src := Source{Domain: "ota", Platform: "ios", Version: "17.0", Build: "21A326", FileName: "x.zip", URL: srv.URL, SHA1: sum}
	key, outcome, err := m.Mirror(context.Background(), src)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if outcome != Mirrored {
		t.Fatalf("outcome = %v, want Mirrored", outcome)
	}
	r, err := store.Reader(context.Background(), key)
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	defer r.Close()
	var buf bytes.Buffer
	buf.ReadFrom(r)
	if !bytes.Equal(buf.Bytes(), body) {
		t.Errorf("stored content = %q, want %q", buf.Bytes(), body)
	}
}

func TestMirrorFailsOnHashMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual"))
	}))
	defer srv.Close()

	store := objstore.NewMemStore()
	m := &Mirrorer{Store: store, Downloader: &Downloader{}, ScratchDir: t.TempDir()}
	src := Source{Domain: "ota", Platform: "ios", Version: "17.0", Build: "21A326", FileName: "x.zip", URL: srv.URL, SHA1: "deadbeef"}
	_, outcome, err := m.Mirror(context.Background(), src)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if outcome != Failed {
		t.Errorf("outcome = %v, want Failed", outcome)
	}
}

func TestMirrorIdempotentOnExistingBlob(t *testing.T) {
	body := []byte("same-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	store := objstore.NewMemStore()
	store.Put("mirror/ota/ios/17.0/21A326/x.zip", body)

	m := &Mirrorer{Store: store, Downloader: &Downloader{}, ScratchDir: t.TempDir()}
	src := Source{Domain: "ota", Platform: "ios", Version: "17.0", Build: "21A326", FileName: "x.zip", URL: srv.URL}
	key, outcome, err := m.Mirror(context.Background(), src)
	if err != nil {
		t.Fatalf("Mirror: %v", err)
	}
	if outcome != Mirrored || key == "" {
		t.Errorf("outcome = %v key=%q, want Mirrored with a key", outcome, key)
	}
}

func sha1Sum(b []byte) string {
	f, _ := os.CreateTemp("", "sha1")
	defer os.Remove(f.Name())
	f.Write(b)
	f.Close()
	sum, _ := sha1File(f.Name())
	return hexString(sum)
}

func hexString(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}
