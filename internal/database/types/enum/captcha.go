package enum

// CaptchaMode selects the kind of challenge presented to a joining member.
type CaptchaMode string

const (
	// CaptchaModeButton asks the member to press a single confirmation button.
	CaptchaModeButton CaptchaMode = "button"
	// CaptchaModeMath asks a multiple-choice arithmetic question with decoys.
	CaptchaModeMath CaptchaMode = "math"
	// CaptchaModeImage asks the member to read digits from a generated image.
	CaptchaModeImage CaptchaMode = "image"
)

// Valid reports whether the mode is one of the known values.
func (m CaptchaMode) Valid() bool {
	switch m {
	case CaptchaModeButton, CaptchaModeMath, CaptchaModeImage:
		return true
	}

	return false
}
