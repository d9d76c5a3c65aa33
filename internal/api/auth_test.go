package api

import (
	"net/http"
	"testing"
)

func TestAuth_RegisterConfirmLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.postJSON(t, "/api/v1/auth/register", "", map[string]string{
		"email": "new@example.com", "password": "long-enough-password",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, want 201", resp.StatusCode)
	}

	// Login must be refused until the address is confirmed.
	resp = env.postJSON(t, "/api/v1/auth/login", "", map[string]string{
		"email": "new@example.com", "password": "long-enough-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login before confirm status = %d, want 401", resp.StatusCode)
	}

	// The confirmation token is delivered out of band; read it from the
	// repository the way the mailer would have received it.
	account, err := env.accounts.GetByEmail(t.Context(), "new@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if account.ConfirmationToken == "" {
		t.Fatal("registered account has no confirmation token")
	}

	resp = env.postJSON(t, "/api/v1/auth/confirm", "", map[string]string{
		"email": "new@example.com", "token": account.ConfirmationToken,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm status = %d, want 200", resp.StatusCode)
	}

	access, refresh := env.login(t, "new@example.com", "long-enough-password")
	if access == "" || refresh == "" {
		t.Fatal("login after confirm returned empty tokens")
	}
}

func TestAuth_Register_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		email    string
		password string
		status   int
		code     string
	}{
		{"bad email", "not-an-email", "long-enough-password", http.StatusBadRequest, ErrCodeValidation},
		{"short password", "ok@example.com", "short", http.StatusBadRequest, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.postJSON(t, "/api/v1/auth/register", "", map[string]string{
				"email": tt.email, "password": tt.password,
			})
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if body := decodeBody(t, resp); body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
		})
	}
}

func TestAuth_Register_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "taken@example.com", "long-enough-password")

	resp := env.postJSON(t, "/api/v1/auth/register", "", map[string]string{
		"email": "taken@example.com", "password": "long-enough-password",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAuth_Login_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "user@example.com", "long-enough-password")

	// Unknown account and wrong password produce the same response.
	for _, creds := range []map[string]string{
		{"email": "nobody@example.com", "password": "long-enough-password"},
		{"email": "user@example.com", "password": "wrong-password-here"},
	} {
		resp := env.postJSON(t, "/api/v1/auth/login", "", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("login(%s) status = %d, want 401", creds["email"], resp.StatusCode)
		}
		if body := decodeBody(t, resp); body["code"] != ErrCodeUnauthorized {
			t.Errorf("login(%s) code = %v, want %s", creds["email"], body["code"], ErrCodeUnauthorized)
		}
	}
}

func TestAuth_Login_LockedOut(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "user@example.com", "long-enough-password")

	// The configured limit is three attempts; the third failure locks.
	for i := 0; i < 2; i++ {
		resp := env.postJSON(t, "/api/v1/auth/login", "", map[string]string{
			"email": "user@example.com", "password": "wrong-password-here",
		})
		if body := decodeBody(t, resp); body["code"] != ErrCodeUnauthorized {
			t.Fatalf("attempt %d code = %v, want %s", i+1, body["code"], ErrCodeUnauthorized)
		}
	}

	resp := env.postJSON(t, "/api/v1/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "wrong-password-here",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("locking attempt status = %d, want 401", resp.StatusCode)
	}
	if body := decodeBody(t, resp); body["code"] != ErrCodeLockedOut {
		t.Errorf("locking attempt code = %v, want %s", body["code"], ErrCodeLockedOut)
	}

	// The correct password is also refused while the lock holds.
	resp = env.postJSON(t, "/api/v1/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "long-enough-password",
	})
	if body := decodeBody(t, resp); body["code"] != ErrCodeLockedOut {
		t.Errorf("locked login code = %v, want %s", body["code"], ErrCodeLockedOut)
	}
}

func TestAuth_Login_BadBody(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/v1/auth/login", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /auth/login: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAuth_Refresh_Rotation(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "user@example.com", "long-enough-password")
	_, refresh := env.login(t, "user@example.com", "long-enough-password")

	resp := env.postJSON(t, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	next, _ := body["refresh_token"].(string)
	if next == "" || next == refresh {
		t.Fatal("refresh did not rotate the token")
	}

	// The consumed token is dead.
	resp = env.postJSON(t, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reused token status = %d, want 401", resp.StatusCode)
	}

	// The rotated token works.
	resp = env.postJSON(t, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": next,
	})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rotated token status = %d, want 200", resp.StatusCode)
	}
}

func TestAuth_Refresh_Malformed(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"", "no-separator", "a.b.c.d"} {
		resp := env.postJSON(t, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": token,
		})
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("refresh(%q) status = %d, want 401", token, resp.StatusCode)
		}
	}
}

func TestAuth_Logout(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "user@example.com", "long-enough-password")
	access, refresh := env.login(t, "user@example.com", "long-enough-password")

	resp := env.postJSON(t, "/api/v1/auth/logout", access, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", resp.StatusCode)
	}

	// The refresh token no longer works after logout.
	resp = env.postJSON(t, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestAuth_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "user@example.com", "long-enough-password")
	access, refresh := env.login(t, "user@example.com", "long-enough-password")

	resp := env.postJSON(t, "/api/v1/auth/change-password", access, map[string]string{
		"current_password": "long-enough-password",
		"new_password":     "even-longer-password",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("change-password status = %d, want 204", resp.StatusCode)
	}

	// The change revokes the live refresh token.
	resp = env.postJSON(t, "/api/v1/auth/refresh", "", map[string]string{
		"refresh_token": refresh,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("refresh after password change status = %d, want 401", resp.StatusCode)
	}

	// Login works only with the new password.
	resp = env.postJSON(t, "/api/v1/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "long-enough-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("old password status = %d, want 401", resp.StatusCode)
	}
	env.login(t, "user@example.com", "even-longer-password")
}

func TestAuth_ChangePassword_WrongCurrent(t *testing.T) {
	env := newTestEnv(t)
	env.seedConfirmed(t, "user@example.com", "long-enough-password")
	access, _ := env.login(t, "user@example.com", "long-enough-password")

	resp := env.postJSON(t, "/api/v1/auth/change-password", access, map[string]string{
		"current_password": "wrong-password-here",
		"new_password":     "even-longer-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuth_Me(t *testing.T) {
	env := newTestEnv(t)
	account := env.seedConfirmed(t, "user@example.com", "long-enough-password")
	if err := env.accounts.SetClaim(t.Context(), account.ID, "Customer", "R,W"); err != nil {
		t.Fatalf("SetClaim() error = %v", err)
	}
	access, _ := env.login(t, "user@example.com", "long-enough-password")

	resp := env.doJSON(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["account_id"] != account.ID {
		t.Errorf("account_id = %v, want %s", body["account_id"], account.ID)
	}
	grants, _ := body["grants"].(map[string]any)
	if _, ok := grants["Customer"]; !ok {
		t.Errorf("grants = %v, want Customer entry", body["grants"])
	}
}

func TestAuth_Me_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", resp.StatusCode)
	}

	resp = env.doJSON(t, http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", resp.StatusCode)
	}
}
