package apiclient

import (
	"errors"
	"fmt"

	"github.com/jrsteele09/campus-auth-client/authmodel"
)

// Kind classifies the outcome of a failed call.
type Kind int

const (
	// KindTransport means no usable response: network, DNS, timeout, or a body that
	// is not JSON.
	KindTransport Kind = iota + 1
	// KindTokenExpired is a 401 carrying AUTH_TOKEN_EXPIRED. Eligible for refresh.
	KindTokenExpired
	// KindAuth is any other 401/403, and a repeated expiry after one refresh.
	KindAuth
	// KindClient is any other 4xx.
	KindClient
	// KindServer is 5xx, and any non-2xx status not covered above.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTokenExpired:
		return "token_expired"
	case KindAuth:
		return "auth"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrTransport    = errors.New("transport error")
	ErrTokenExpired = errors.New("token expired")
	ErrAuth         = errors.New("authentication error")
	ErrClient       = errors.New("client error")
	ErrServer       = errors.New("server error")
)

var kindSentinels = map[Kind]error{
	KindTransport:    ErrTransport,
	KindTokenExpired: ErrTokenExpired,
	KindAuth:         ErrAuth,
	KindClient:       ErrClient,
	KindServer:       ErrServer,
}

const defaultErrorMessage = "API request failed"

// Error is the failure of a single API call.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, 0 for transport failures
	Message string // server supplied "error", or a client side description
	Code    string // server supplied "code", if any
	Err     error  // underlying cause, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultErrorMessage
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s error [%d]: %s", e.Kind, e.Status, msg)
	} else {
		msg = fmt.Sprintf("%s error: %s", e.Kind, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// AsAuth returns a copy of e reclassified as KindAuth, keeping status, message and code.
func (e *Error) AsAuth() *Error {
	c := *e
	c.Kind = KindAuth
	return &c
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// Classify maps an HTTP status and error code to a Kind. 2xx statuses return 0.
func Classify(status int, code string) Kind {
	switch {
	case status >= 200 && status < 300:
		return 0
	case status == 401 && code == authmodel.CodeTokenExpired:
		return KindTokenExpired
	case status == 401 || status == 403:
		return KindAuth
	case status >= 400 && status < 500:
		return KindClient
	default:
		return KindServer
	}
}
