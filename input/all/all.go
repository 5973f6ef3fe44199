// Package all imports all backends implemented by the input package.
package all

import (
	_ "github.com/noriah/bcifeed/input/common/execread"
	_ "github.com/noriah/bcifeed/input/edfreplay"
	_ "github.com/noriah/bcifeed/input/parec"
	_ "github.com/noriah/bcifeed/input/stdinput"
)
