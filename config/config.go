// Package config holds the build configuration of a Quard-Star firmware
// image: compiler flags, platform objects and link addresses.
package config

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/quard-star/platform/fixup"
)

const (
	DefaultObject      = "platform.o"
	DefaultFWTextStart = 0x80000000
	DefaultFWSize      = 0x200000
)

var (
	ErrNoTextStart = errors.New("FW_TEXT_START is mandatory")
	ErrObjects     = errors.New("exactly one platform object is required")
	ErrJumpAddr    = errors.New("FW_JUMP_ADDR overlaps the firmware")
	ErrOverride    = errors.New("override must be KEY=value")
)

// Build is the platform build configuration.
type Build struct {
	CPPFlags []string `mapstructure:"platform-cppflags-y" yaml:"platform-cppflags-y"`
	CFlags   []string `mapstructure:"platform-cflags-y" yaml:"platform-cflags-y"`
	ASFlags  []string `mapstructure:"platform-asflags-y" yaml:"platform-asflags-y"`
	LDFlags  []string `mapstructure:"platform-ldflags-y" yaml:"platform-ldflags-y"`
	Objects  []string `mapstructure:"platform-objs-y" yaml:"platform-objs-y"`

	FWTextStart uint64 `mapstructure:"FW_TEXT_START" yaml:"FW_TEXT_START"`
	// FWJumpAddr is where the next stage is entered, 0 when the firmware
	// is built without a jump target.
	FWJumpAddr uint64 `mapstructure:"FW_JUMP_ADDR" yaml:"FW_JUMP_ADDR"`
	FWSize     uint64 `mapstructure:"FW_SIZE" yaml:"FW_SIZE"`
}

// Default returns the stock Quard-Star build configuration.
func Default() Build {
	return Build{
		CPPFlags:    []string{},
		CFlags:      []string{},
		ASFlags:     []string{},
		LDFlags:     []string{},
		Objects:     []string{DefaultObject},
		FWTextStart: DefaultFWTextStart,
		FWSize:      DefaultFWSize,
	}
}

// Load reads a YAML build configuration from r on top of the defaults, then
// applies KEY=value overrides. List values in overrides are space separated.
func Load(r io.Reader, overrides ...string) (Build, error) {
	raw := defaults()

	if r != nil {
		doc := map[string]interface{}{}
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return Build{}, fmt.Errorf("cannot read build configuration, %w", err)
		}

		for k, v := range doc {
			raw[k] = v
		}
	}

	for _, o := range overrides {
		key, value, ok := cut(o, "=")
		if !ok || key == "" {
			return Build{}, fmt.Errorf("%q, %w", o, ErrOverride)
		}

		if strings.HasSuffix(key, "-y") {
			list := []interface{}{}
			for _, f := range strings.Fields(value) {
				list = append(list, f)
			}
			raw[key] = list

			continue
		}

		raw[key] = value
	}

	var b Build

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(addressHook),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &b,
	})
	if err != nil {
		return Build{}, err
	}

	if err := dec.Decode(raw); err != nil {
		return Build{}, fmt.Errorf("cannot unmarshal into structure, %w", err)
	}

	return b, nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"platform-cppflags-y": []interface{}{},
		"platform-cflags-y":   []interface{}{},
		"platform-asflags-y":  []interface{}{},
		"platform-ldflags-y":  []interface{}{},
		"platform-objs-y":     []interface{}{DefaultObject},
		"FW_TEXT_START":       uint64(DefaultFWTextStart),
		"FW_JUMP_ADDR":        uint64(0),
		"FW_SIZE":             uint64(DefaultFWSize),
	}
}

// addressHook accepts addresses written as strings in any base strconv
// understands, 0x80000000 included.
func addressHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Uint64 {
		return data, nil
	}

	return strconv.ParseUint(strings.ReplaceAll(data.(string), "_", ""), 0, 64)
}

func cut(s, sep string) (before, after string, found bool) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}

	return s, "", false
}

// Validate checks b can produce a firmware image.
func (b Build) Validate() error {
	if b.FWTextStart == 0 {
		return ErrNoTextStart
	}

	if len(b.Objects) != 1 {
		return fmt.Errorf("got %v, %w", b.Objects, ErrObjects)
	}

	if b.FWJumpAddr != 0 && b.FWJumpAddr >= b.FWTextStart && b.FWJumpAddr < b.FWTextStart+b.FWSize {
		return fmt.Errorf("%#x, %w", b.FWJumpAddr, ErrJumpAddr)
	}

	return nil
}

// Firmware returns the memory the firmware image occupies.
func (b Build) Firmware() fixup.Region {
	return fixup.Region{Base: b.FWTextStart, Size: b.FWSize}
}

// Encode writes b as YAML.
func (b Build) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(b); err != nil {
		return err
	}

	return enc.Close()
}
