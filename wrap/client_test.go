package wrap

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/embercef/bridge"
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/confined"
	"github.com/embercef/bridge/refcount"
)

type reqState struct {
	url      string
	status   Status
	canceled atomic.Bool
}

// newTestRequest builds a foreign-origin-style request the way the
// foreign side would: same container machinery, its own trampolines.
func newTestRequest(url string, status Status) refcount.Ptr[RequestObject] {
	slots := RequestObject{
		GetURL: func(self *RequestObject) *capi.String {
			return capi.NewString((*refcount.Borrow[RequestObject, *reqState](self)).url)
		},
		GetStatus: func(self *RequestObject) int32 {
			return int32((*refcount.Borrow[RequestObject, *reqState](self)).status)
		},
		Cancel: func(self *RequestObject) {
			(*refcount.Borrow[RequestObject, *reqState](self)).canceled.Store(true)
		},
	}
	return refcount.Wrap(slots, &reqState{url: url, status: status})
}

// requestOwners introspects through the ABI slots, which is all the
// foreign side can observe: 1, "more than one", or gone.
func requestOwners(p refcount.Ptr[RequestObject]) int64 {
	if p.HasOneRef() {
		return 1
	}
	if p.HasAtLeastOneRef() {
		return 2
	}
	return 0
}

type recordingClient struct {
	mu          sync.Mutex
	completed   []string
	downloads   [][2]int64
	uploads     [][2]int64
	data        []byte
	credentials []string
	answer      bool
	kept        Request
}

func (c *recordingClient) OnComplete(req Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, req.URL())
}

func (c *recordingClient) OnUploadProgress(req Request, current, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uploads = append(c.uploads, [2]int64{current, total})
}

func (c *recordingClient) OnDownloadProgress(req Request, current, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloads = append(c.downloads, [2]int64{current, total})
}

func (c *recordingClient) OnData(req Request, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, data...)
}

func (c *recordingClient) GetCredentials(isProxy bool, host string, port uint16, realm, scheme string, cb *AuthContinuation) bool {
	c.mu.Lock()
	c.credentials = append(c.credentials, host, realm, scheme)
	answer := c.answer
	c.mu.Unlock()
	if answer {
		cb.Continue("user", "secret")
		return true
	}
	return false
}

type completeOnlyClient struct {
	calls atomic.Int32
}

func (c *completeOnlyClient) OnComplete(req Request) { c.calls.Add(1) }

func TestWrapClient_OptionalSlotsLeftNil(t *testing.T) {
	p := WrapClient(&completeOnlyClient{})
	defer p.Release()

	raw := p.Raw()
	if raw.OnComplete == nil {
		t.Fatal("base capability slot missing")
	}
	if raw.OnUploadProgress != nil || raw.OnDownloadProgress != nil ||
		raw.OnData != nil || raw.GetCredentials != nil {
		t.Fatal("unimplemented capabilities must leave slots nil")
	}
}

func TestWrapClient_FullDispatch(t *testing.T) {
	client := &recordingClient{}
	p := WrapClient(client)
	defer p.Release()

	req := newTestRequest("https://example.com/a", StatusSuccess)
	defer req.Release()

	raw := p.Raw()
	rawReq := req.Raw()

	raw.OnUploadProgress(raw, rawReq, 10, 100)
	raw.OnDownloadProgress(raw, rawReq, 50, 200)
	raw.OnData(raw, rawReq, []byte("chunk-1 "))
	raw.OnData(raw, rawReq, []byte("chunk-2"))
	raw.OnComplete(raw, rawReq)

	if got := requestOwners(req); got != 1 {
		t.Fatalf("request owner count changed by trampolines: %d", got)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.completed) != 1 || client.completed[0] != "https://example.com/a" {
		t.Fatalf("completion not recorded: %v", client.completed)
	}
	if len(client.uploads) != 1 || client.uploads[0] != [2]int64{10, 100} {
		t.Fatalf("upload progress wrong: %v", client.uploads)
	}
	if len(client.downloads) != 1 || client.downloads[0] != [2]int64{50, 200} {
		t.Fatalf("download progress wrong: %v", client.downloads)
	}
	if string(client.data) != "chunk-1 chunk-2" {
		t.Fatalf("data wrong: %q", client.data)
	}
}

func TestWrapClient_ClonedRequestOutlivesCall(t *testing.T) {
	client := &recordingClient{}
	p := WrapClient(client)
	defer p.Release()

	keep := WrapClient(clientFunc(func(req Request) {
		client.mu.Lock()
		client.kept = req.Clone()
		client.mu.Unlock()
	}))
	defer keep.Release()

	req := newTestRequest("https://example.com/keep", StatusIOPending)

	raw := keep.Raw()
	raw.OnComplete(raw, req.Raw())

	// The foreign side drops its unit; the clone must keep the object up.
	req.Release()

	client.mu.Lock()
	kept := client.kept
	client.mu.Unlock()
	if kept.URL() != "https://example.com/keep" {
		t.Fatalf("cloned request dead after foreign release: %q", kept.URL())
	}
	kept.Release()
}

// clientFunc adapts a bare closure to the base capability, mirroring how
// callers hand in one-off observers.
type clientFunc func(req Request)

func (f clientFunc) OnComplete(req Request) { f(req) }

func newTestAuth(gotUser, gotPass *string, canceled *atomic.Bool, destroyed *atomic.Int32) refcount.Ptr[AuthObject] {
	slots := AuthObject{
		Continue: func(self *AuthObject, username, password *capi.String) {
			st := refcount.Borrow[AuthObject, [2]*string](self)
			*st[0] = username.Get()
			*st[1] = password.Get()
		},
		Cancel: func(self *AuthObject) {
			canceled.Store(true)
		},
	}
	return refcount.Wrap(slots, [2]*string{gotUser, gotPass}, refcount.WithOnDestroy(func() {
		destroyed.Add(1)
	}))
}

func TestWrapClient_CredentialsContinue(t *testing.T) {
	client := &recordingClient{answer: true}
	p := WrapClient(client)
	defer p.Release()

	var user, pass string
	var canceled atomic.Bool
	var destroyed atomic.Int32
	auth := newTestAuth(&user, &pass, &canceled, &destroyed)

	raw := p.Raw()
	got := raw.GetCredentials(raw, capi.CBool(false),
		capi.NewString("example.com"), 443,
		capi.NewString("realm"), capi.NewString("basic"), auth.Raw())

	if !capi.Bool(got) {
		t.Fatal("provider should have handled the challenge")
	}
	if user != "user" || pass != "secret" {
		t.Fatalf("credentials not delivered: %q/%q", user, pass)
	}

	// The trampoline's retain was consumed by Continue; only the foreign
	// unit remains.
	auth.Release()
	if destroyed.Load() != 1 {
		t.Fatalf("auth destroyed %d times, want 1", destroyed.Load())
	}
}

func TestWrapClient_CredentialsDeclined(t *testing.T) {
	client := &recordingClient{answer: false}
	p := WrapClient(client)
	defer p.Release()

	var user, pass string
	var canceled atomic.Bool
	var destroyed atomic.Int32
	auth := newTestAuth(&user, &pass, &canceled, &destroyed)

	raw := p.Raw()
	got := raw.GetCredentials(raw, capi.CBool(true),
		capi.NewString("proxy.example.com"), 8080,
		capi.NewString(""), capi.NewString("digest"), auth.Raw())

	if capi.Bool(got) {
		t.Fatal("provider should have declined")
	}
	auth.Release()
	if destroyed.Load() != 1 {
		t.Fatalf("declined continuation leaked: destroyed %d times", destroyed.Load())
	}
}

func TestWrapClient_NoCredentialsCapability(t *testing.T) {
	p := WrapClient(&completeOnlyClient{})
	defer p.Release()

	if p.Raw().GetCredentials != nil {
		t.Fatal("slot should be nil; the foreign side must see it as unsupported")
	}
}

func TestWrapClient_PanicContained(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bridge.SetLogger(zap.New(core))
	defer bridge.SetLogger(nil)

	p := WrapClient(clientFunc(func(req Request) { panic("client bug") }))
	defer p.Release()

	req := newTestRequest("https://example.com", StatusFailed)
	defer req.Release()

	raw := p.Raw()
	raw.OnComplete(raw, req.Raw()) // must not panic across the slot

	if logs.Len() != 1 {
		t.Fatalf("expected the panic to be logged once, got %d entries", logs.Len())
	}
}

func TestWrapClientConfined_ViolationContained(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	bridge.SetLogger(zap.New(core))
	defer bridge.SetLogger(nil)

	confined.EnableCheck(true)
	defer confined.EnableCheck(false)

	p := WrapClientConfined(&completeOnlyClient{})
	defer p.Release()

	req := newTestRequest("https://example.com", StatusSuccess)
	defer req.Release()

	raw := p.Raw()
	raw.OnComplete(raw, req.Raw()) // binds the payload to this goroutine

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		raw.OnComplete(raw, req.Raw())
	}()
	wg.Wait()

	found := false
	for _, e := range logs.All() {
		for _, f := range e.Context {
			if f.Key == "error" && strings.Contains(f.Interface.(error).Error(), "confined") {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("confinement violation should surface as a contained panic")
	}
}

func TestRequest_AbsentAndUnsupportedDefaults(t *testing.T) {
	var absent Request
	if absent.URL() != "" || absent.Status() != StatusUnknown {
		t.Fatal("absent request must return defaults")
	}
	absent.Cancel() // no-op

	// An object with no populated slots: present but feature-less.
	bare := refcount.Wrap(RequestObject{}, struct{}{})
	defer bare.Release()

	r := NewRequest(bare.Clone())
	defer r.Release()
	if r.URL() != "" || r.Status() != StatusUnknown {
		t.Fatal("unsupported slots must return defaults")
	}
	r.Cancel()
}
