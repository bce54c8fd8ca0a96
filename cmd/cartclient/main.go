// Command cartclient talks to the cart server over the realtime channel.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Error("cartclient failed")
		os.Exit(1)
	}
}
