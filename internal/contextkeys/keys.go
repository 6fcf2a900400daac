package contextkeys

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

// User is the context key for the authenticated *domain.User, set by the
// Auth middleware.
const User contextKey = "user"
