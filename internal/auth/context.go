package auth

import "context"

// Staff is the authenticated caller of the admin API.
type Staff struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

type staffKey struct{}

func WithStaff(ctx context.Context, s Staff) context.Context {
	return context.WithValue(ctx, staffKey{}, s)
}

// StaffFrom returns the staff identity placed by RequireAccessToken.
func StaffFrom(ctx context.Context) (Staff, bool) {
	s, ok := ctx.Value(staffKey{}).(Staff)
	if !ok || s.Subject == "" {
		return Staff{}, false
	}
	return s, true
}
