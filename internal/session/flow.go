package session

import (
	"crypto/sha256"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// FlowCookieName carries state for one login round-trip: the pending
// redirect and the ambient markers surfaced into the audit context.
const FlowCookieName = "fence_flow"

// Keys stored in the flow session.
const (
	KeyRedirect = "redirect"
	KeyFenceIdP = "fence_idp"
	KeyShibIdP  = "shib_idp"
	KeyClientID = "client_id"
)

// FlowStore issues signed and encrypted flow cookies.
type FlowStore struct {
	store *sessions.CookieStore
}

// NewFlowStore derives the HMAC and AES keys from secret.
func NewFlowStore(secret string, secure bool, maxAge time.Duration) *FlowStore {
	hashKey := sha256.Sum256([]byte("flow-hash:" + secret))
	blockKey := sha256.Sum256([]byte("flow-block:" + secret))

	store := sessions.NewCookieStore(hashKey[:], blockKey[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &FlowStore{store: store}
}

// Load returns the flow session for r. A cookie that fails to decode
// (tampered, or signed with a rotated secret) yields a fresh session and
// the decode error; callers may continue with the fresh session.
func (f *FlowStore) Load(r *http.Request) (*Flow, error) {
	s, err := f.store.Get(r, FlowCookieName)
	return &Flow{s: s}, err
}

// Flow is one request's view of the flow session.
type Flow struct {
	s *sessions.Session
}

func (f *Flow) Get(key string) string {
	v, _ := f.s.Values[key].(string)
	return v
}

func (f *Flow) Set(key, value string) {
	f.s.Values[key] = value
}

func (f *Flow) Delete(key string) {
	delete(f.s.Values, key)
}

// Save writes the cookie. It must run before the response body is written.
func (f *Flow) Save(r *http.Request, w http.ResponseWriter) error {
	return f.s.Save(r, w)
}
