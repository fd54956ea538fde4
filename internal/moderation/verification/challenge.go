package verification

import (
	"bytes"
	"fmt"
	"image/png"
	"math/rand"
	"strconv"
	"time"

	"github.com/dchest/captcha"

	"github.com/groupwarden/warden/internal/database/types/enum"
)

// mathAttempts is the number of wrong answers allowed before a math or
// image challenge fails.
const mathAttempts = 3

// imageDigits is the digit count of generated image challenges.
const imageDigits = 5

// Challenge is the pending verification state for one joining member.
type Challenge struct {
	GroupID   int64            `json:"groupId"`
	UserID    int64            `json:"userId"`
	Mode      enum.CaptchaMode `json:"mode"`
	CreatedAt time.Time        `json:"createdAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
	// Prompt is the question text for the math mode.
	Prompt string `json:"prompt"`
	// Answer is the correct option; empty for the button mode.
	Answer string `json:"answer"`
	// Options are the presented choices for the math mode.
	Options []string `json:"options"`
	// AttemptsRemaining applies to math and image modes.
	AttemptsRemaining int `json:"attemptsRemaining"`
}

// Expired reports whether the challenge passed its deadline.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// newChallenge builds the challenge state and the PNG image for the image
// mode. The image is not stored, only sent.
func newChallenge(
	groupID, userID int64, mode enum.CaptchaMode, timeout time.Duration, now time.Time,
) (*Challenge, []byte, error) {
	c := &Challenge{
		GroupID:   groupID,
		UserID:    userID,
		Mode:      mode,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}

	switch mode {
	case enum.CaptchaModeButton:
		return c, nil, nil

	case enum.CaptchaModeMath:
		a, b := rand.Intn(50)+1, rand.Intn(50)+1
		answer := a + b

		// One correct option among three decoys, shuffled
		options := map[int]struct{}{answer: {}}
		for len(options) < 4 {
			decoy := answer + rand.Intn(21) - 10
			if decoy != answer && decoy > 0 {
				options[decoy] = struct{}{}
			}
		}

		for option := range options {
			c.Options = append(c.Options, strconv.Itoa(option))
		}

		rand.Shuffle(len(c.Options), func(i, j int) {
			c.Options[i], c.Options[j] = c.Options[j], c.Options[i]
		})

		c.Prompt = fmt.Sprintf("%d + %d", a, b)
		c.Answer = strconv.Itoa(answer)
		c.AttemptsRemaining = mathAttempts

		return c, nil, nil

	case enum.CaptchaModeImage:
		digits := captcha.RandomDigits(imageDigits)

		answer := make([]byte, imageDigits)
		for i, d := range digits {
			answer[i] = '0' + d
		}

		c.Answer = string(answer)
		c.AttemptsRemaining = mathAttempts

		// One correct option among three decoy digit strings, shuffled
		options := map[string]struct{}{c.Answer: {}}
		for len(options) < 4 {
			decoy := make([]byte, imageDigits)
			for i := range decoy {
				decoy[i] = '0' + byte(rand.Intn(10))
			}

			options[string(decoy)] = struct{}{}
		}

		for option := range options {
			c.Options = append(c.Options, option)
		}

		rand.Shuffle(len(c.Options), func(i, j int) {
			c.Options[i], c.Options[j] = c.Options[j], c.Options[i]
		})

		img := captcha.NewImage(fmt.Sprintf("%d:%d", groupID, userID), digits, captcha.StdWidth, captcha.StdHeight)

		buf := new(bytes.Buffer)
		if err := png.Encode(buf, img); err != nil {
			return nil, nil, fmt.Errorf("failed to encode challenge image: %w", err)
		}

		return c, buf.Bytes(), nil

	default:
		return nil, nil, fmt.Errorf("unknown captcha mode %q", mode)
	}
}

// Question returns the text shown with the challenge.
func (c *Challenge) Question() string {
	switch c.Mode {
	case enum.CaptchaModeMath:
		return fmt.Sprintf("Solve %s to start chatting.", c.Prompt)
	case enum.CaptchaModeImage:
		return "Press the button matching the digits in the image to start chatting."
	default:
		return "Press the button below to confirm you are human."
	}
}
