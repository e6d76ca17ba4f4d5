package dojo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Credentials are the user-supplied ways to authenticate. Token and the
// username/password pair are mutually exclusive.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// CredentialSource records how a Credential was obtained.
type CredentialSource string

const (
	SourceProvided CredentialSource = "provided"
	SourceLogin    CredentialSource = "login"
)

// Credential is the bearer token used for the rest of the run. It is never
// refreshed; a run that outlives the token fails.
type Credential struct {
	Token  string
	Source CredentialSource
}

// Masked returns a prefix of the token that is safe to print.
func (c Credential) Masked() string {
	if len(c.Token) <= 10 {
		return strings.Repeat("*", len(c.Token))
	}
	return c.Token[:10] + "..."
}

// ResolveCredential uses a supplied token as-is, without a network call, or
// exchanges the username and password for one.
func ResolveCredential(ctx context.Context, session *http.Client, baseURL string, creds Credentials) (Credential, error) {
	if creds.Token != "" {
		return Credential{Token: creds.Token, Source: SourceProvided}, nil
	}
	if creds.Username == "" || creds.Password == "" {
		return Credential{}, &AuthError{Err: fmt.Errorf("no token and incomplete username/password")}
	}
	if session == nil {
		session = http.DefaultClient
	}

	payload, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return Credential{}, &AuthError{Err: err}
	}
	endpoint := strings.TrimRight(baseURL, "/") + pathTokenAuth
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Credential{}, &AuthError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := session.Do(req)
	if err != nil {
		return Credential{}, &AuthError{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Body: truncate(body), Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if lr.Token == "" {
		return Credential{}, &AuthError{StatusCode: resp.StatusCode, Body: truncate(body), Err: fmt.Errorf("token response carried no token")}
	}
	return Credential{Token: lr.Token, Source: SourceLogin}, nil
}
