package dll

import "errors"

// ErrShortBuffer is returned by Decode when the supplied buffer is
// smaller than Size.
var ErrShortBuffer = errors.New("dll: buffer shorter than header size")
