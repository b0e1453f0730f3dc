package mysmartbike

const (
	// DefaultBaseURL is the production MySmartBike cloud endpoint.
	DefaultBaseURL = "https://production.mysmartbike.com"

	// DefaultLimit caps the number of bikes returned by the objects endpoint.
	DefaultLimit = 5

	loginPath   = "/api/v1/users/login"
	objectsPath = "/api/v1/objects/me"

	timeLayout = "2006-01-02 15:04:05"

	// The cloud rejects requests that don't look like the mobile app.
	userAgent      = "okhttp/4.9.2"
	headerTheme    = "mahle"
	headerApp      = "mysmartbike"
	headerPlatform = "android"
	headerVersion  = "2.20.1"
)
