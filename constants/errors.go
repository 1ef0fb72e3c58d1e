package constants

const (
	ServerOK            = 0
	ServerError         = 1
	ServerInvalidData   = 2
	ServerNotFound      = 3
	ServerConflict      = 4
	ServerUnauthorized  = 5
	ServerInvalidAPIKey = 6
	ServerRemoteError   = 7
	ServerNotConnected  = 8
)
