package service

// OTPGenerator produces numeric one-time codes.
type OTPGenerator interface {
	// Generate returns a uniformly random 6-digit code in [100000, 999999].
	Generate() (string, error)
}
