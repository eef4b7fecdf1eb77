package identity

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	cause := errors.New("boom")

	cases := []struct {
		name        string
		err         error
		conflict    bool
		notFound    bool
		invalid     bool
		credentials bool
		store       bool
		wantField   string
		wantPublic  string
	}{
		{name: "conflict", err: ConflictError{Op: "x", Field: "email"}, conflict: true, wantField: "email"},
		{name: "wrapped conflict", err: fmt.Errorf("outer: %w", ConflictError{Op: "x", Field: "username"}), conflict: true, wantField: "username"},
		{name: "not found", err: NotFoundError{Op: "x", Resource: "user"}, notFound: true},
		{name: "invalid", err: invalid("x", MsgEmailRequired), invalid: true, wantPublic: MsgEmailRequired},
		{name: "credentials", err: OpError{Op: "x", Kind: ErrInvalidCredentials, Msg: MsgInvalidCredentials}, credentials: true, wantPublic: MsgInvalidCredentials},
		{name: "store", err: storeErr("x", cause), store: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsConflict(tc.err); got != tc.conflict {
				t.Fatalf("IsConflict=%v", got)
			}
			if got := IsNotFound(tc.err); got != tc.notFound {
				t.Fatalf("IsNotFound=%v", got)
			}
			if got := IsInvalidInput(tc.err); got != tc.invalid {
				t.Fatalf("IsInvalidInput=%v", got)
			}
			if got := IsInvalidCredentials(tc.err); got != tc.credentials {
				t.Fatalf("IsInvalidCredentials=%v", got)
			}
			if got := IsStore(tc.err); got != tc.store {
				t.Fatalf("IsStore=%v", got)
			}
			field, _ := ConflictField(tc.err)
			if field != tc.wantField {
				t.Fatalf("ConflictField=%q", field)
			}
			msg, _ := PublicMessage(tc.err)
			if msg != tc.wantPublic {
				t.Fatalf("PublicMessage=%q", msg)
			}
		})
	}
}

func TestStoreErr(t *testing.T) {
	if storeErr("x", nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	cause := errors.New("reset")
	err := storeErr("outer", storeErr("inner", cause))
	var se StoreError
	if !errors.As(err, &se) || se.Op != "inner" {
		t.Fatalf("must not double wrap: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost")
	}
}
