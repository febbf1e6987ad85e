//go:build !linux

package genericlinux

import (
	"github.com/pkg/errors"

	"go.viam.com/tapsense/logging"
)

func openCDevInterrupt(chipPath string, offset int, logger logging.Logger) (closableInterrupt, error) {
	return nil, errors.Errorf("the %s interrupt backend needs Linux; use %s instead", BackendGPIOCDev, BackendSysfs)
}
