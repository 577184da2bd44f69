package core

// User represents the account the diagnosis service knows about.
//
// This is the "identity" - who the backend says is logged in
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Session is the in-memory authentication state. Exactly one exists per
// SessionManager; consumers only ever see copies.
type Session struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"-"` // Never expose in JSON
	RefreshToken string `json:"-"` // Never expose in JSON
	IsLoading    bool   `json:"isLoading"`
}

// Authenticated reports whether the session holds a usable identity.
func (s Session) Authenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// Consistent checks the stable-state invariant: user and access token are
// both present or both absent. A violated session must be torn down.
func (s Session) Consistent() bool {
	return (s.User != nil) == (s.AccessToken != "")
}

// MediaAsset describes one image to upload. URI is a local or opaque
// reference (file path or fetchable URL) valid only for the current attempt.
type MediaAsset struct {
	URI       string
	Name      string
	MimeType  string
	SizeBytes int64
}

// Credential store keys. The store holds exactly these three.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUserData     = "userData"
)

// MaxBatchAssets caps one picker selection.
const MaxBatchAssets = 10
