package radio

import (
	"fmt"

	"github.com/radiocore/datad/pkg/util"
)

// ErrBindingDisconnected is returned synchronously by a DataServiceBinding
// method when the remote package is not currently bound (spec §4.1:
// IllegalState on disconnected binding).
var ErrBindingDisconnected = fmt.Errorf("data service binding: %w", util.ErrNotConnected)
