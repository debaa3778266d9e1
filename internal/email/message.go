// Package email defines the outbound email model handed from the forms host to a
// delivery backend.
package email

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Format is the body format of a notification.
type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "text"
)

// Address is a mailbox with an optional display name.
type Address struct {
	Name    string
	Address string
}

// Outbound is a fully rendered email ready for delivery.
type Outbound struct {
	From        Address
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	Body        string
	Format      Format
	ReplyTo     string
	Attachments []Attachment
}

// Attachment is a file on local disk attached to an email.
type Attachment struct {
	FilePath string
	FileName string

	// root confines reads when set.
	root *Root
}

// IsHTML reports whether the body should be delivered as text/html.
func (o *Outbound) IsHTML() bool {
	return o.Format == FormatHTML
}

// NewAttachment creates an attachment for path, named after its base name.
func NewAttachment(path string) Attachment {
	return Attachment{FilePath: path, FileName: filepath.Base(path)}
}

// Read returns the attachment bytes. A confined attachment is read through
// its Root and fails for paths outside it.
func (a Attachment) Read() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if a.root != nil {
		data, err = a.root.readFile(a.FilePath)
	} else {
		data, err = os.ReadFile(a.FilePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment %q: %w", a.FilePath, err)
	}
	return data, nil
}

// Size returns the attachment size in bytes, honouring the same confinement
// as Read.
func (a Attachment) Size() (int64, error) {
	var (
		info os.FileInfo
		err  error
	)
	if a.root != nil {
		info, err = a.root.stat(a.FilePath)
	} else {
		info, err = os.Stat(a.FilePath)
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Confine routes every attachment read through r. A nil r leaves the
// attachments unconfined.
func (o *Outbound) Confine(r *Root) {
	if r == nil {
		return
	}
	for i := range o.Attachments {
		o.Attachments[i].root = r
	}
}

var (
	// ErrOutsideRoot is returned for attachment paths that leave the root.
	ErrOutsideRoot = errors.New("attachment path is outside the attachments root")
	// ErrAttachmentsDisabled is returned when no attachments root is configured.
	ErrAttachmentsDisabled = errors.New("attachments are disabled: no attachments root configured")
)

// Root is the directory attachments may be read from. Paths are resolved with
// os.Root, so ".." components and symlinks cannot escape it. A Root opened
// with an empty directory refuses every attachment.
type Root struct {
	dir  string
	root *os.Root
}

// OpenRoot opens dir as the attachments root.
func OpenRoot(dir string) (*Root, error) {
	if dir == "" {
		return &Root{}, nil
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attachments root: %w", err)
	}
	root, err := os.OpenRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open attachments root: %w", err)
	}
	return &Root{dir: abs, root: root}, nil
}

// Dir returns the absolute root directory, or "" when attachments are disabled.
func (r *Root) Dir() string {
	return r.dir
}

// Close releases the root directory handle.
func (r *Root) Close() error {
	if r.root == nil {
		return nil
	}
	return r.root.Close()
}

// rel maps path onto the root. Absolute paths must lie under the root
// directory; relative paths are taken relative to it.
func (r *Root) rel(path string) (string, error) {
	if r.root == nil {
		return "", ErrAttachmentsDisabled
	}

	rel := filepath.Clean(path)
	if filepath.IsAbs(rel) {
		var err error
		if rel, err = filepath.Rel(r.dir, rel); err != nil {
			return "", ErrOutsideRoot
		}
	}
	if !filepath.IsLocal(rel) {
		return "", ErrOutsideRoot
	}
	return rel, nil
}

func (r *Root) readFile(path string) ([]byte, error) {
	rel, err := r.rel(path)
	if err != nil {
		return nil, err
	}
	return r.root.ReadFile(rel)
}

func (r *Root) stat(path string) (os.FileInfo, error) {
	rel, err := r.rel(path)
	if err != nil {
		return nil, err
	}
	return r.root.Stat(rel)
}

var angleAddr = regexp.MustCompile(`<(.*)>`)

// ParseFromHeader extracts the address between angle brackets in a From header
// such as `"Forms" <noreply@example.com>`. A header without angle brackets is
// returned trimmed; the provider decides whether it is acceptable.
func ParseFromHeader(header string) string {
	if m := angleAddr.FindStringSubmatch(header); m != nil {
		return m[1]
	}
	return strings.TrimSpace(header)
}

// SplitAddresses splits a comma-joined address list, trims each entry and drops
// blanks. Order is preserved.
func SplitAddresses(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitHeaderAddresses splits a Cc or Bcc header value, stripping a leading
// "Cc: " or "Bcc: " label the forms host sometimes leaves in place.
func SplitHeaderAddresses(name, value string) []string {
	value = strings.TrimPrefix(strings.TrimSpace(value), name+": ")
	return SplitAddresses(value)
}
