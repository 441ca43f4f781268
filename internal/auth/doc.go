// Package auth registers and authenticates library users.
//
// Passwords are stored as argon2id digests in the form
//
//	base64(digest):base64(salt)
//
// with a fresh 16-byte salt per password. The storage backends only ever see
// that string.
//
// # Usage
//
//	authService := auth.NewService(selector)
//	user, err := authService.Authenticate(ctx, username, password)
//	if errors.Is(err, auth.ErrInvalidCredentials) {
//		// unknown user or wrong password
//	}
//
// There is no session or token scheme here: callers keep the authenticated
// user's ID themselves (see datasource.Session).
package auth
