package kernels

import (
	"fmt"
	"strings"
)

// Activation is the function applied to an accumulated sum before rescaling.
type Activation uint8

// Activation kinds. Only Linear, Saturation and Rectifier are executable;
// the others exist so that network descriptions naming them can be rejected
// with a precise error.
const (
	Linear Activation = iota
	Saturation
	Rectifier
	Tanh
	Logistic
	LogisticWithLoss
	Softplus
	Swish
)

var activationNames = [...]string{
	Linear:           "linear",
	Saturation:       "saturation",
	Rectifier:        "rectifier",
	Tanh:             "tanh",
	Logistic:         "logistic",
	LogisticWithLoss: "logistic_with_loss",
	Softplus:         "softplus",
	Swish:            "swish",
}

func (a Activation) String() string {
	if int(a) < len(activationNames) {
		return activationNames[a]
	}
	return fmt.Sprintf("activation(%d)", uint8(a))
}

// Executable reports whether Sat can apply the activation.
func (a Activation) Executable() bool {
	return a == Linear || a == Saturation || a == Rectifier
}

// ParseActivation maps a name to an Activation. The empty string is Linear,
// and "relu" is accepted as an alias of "rectifier".
func ParseActivation(s string) (Activation, error) {
	switch s = strings.ToLower(s); s {
	case "":
		return Linear, nil
	case "relu":
		return Rectifier, nil
	}
	for i, name := range activationNames {
		if name == s {
			return Activation(i), nil
		}
	}
	return Linear, fmt.Errorf("%w: unknown activation %q", ErrConfig, s)
}

func checkActivation(a Activation) error {
	if !a.Executable() {
		return fmt.Errorf("%w: unsupported activation %v", ErrConfig, a)
	}
	return nil
}
