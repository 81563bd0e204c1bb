package cmdline

import (
	"fmt"
	"strconv"
	"strings"
)

// UintValue
type UintValue struct {
	Value     uint
	IsDefault bool
	Error     error
	Base      int
}

func NewUintValueDefault(default_value uint) *UintValue {
	return &UintValue{
		Value:     default_value,
		Base:      10,
		IsDefault: true,
		Error:     nil,
	}
}

func NewUintValue() *UintValue {
	return NewUintValueDefault(0)
}

func (val *UintValue) Set(raw string) error {
	actual, err := strconv.ParseUint(raw, val.Base, 32)
	if err != nil {
		return err
	}
	val.IsDefault = false
	val.Value = uint(actual)
	return nil
}

func (val *UintValue) String() string {
	base := val.Base
	if base == 0 {
		base = 10
	}
	return strconv.FormatUint(uint64(val.Value), base)
}

// FloatValue
type FloatValue struct {
	Value     float64
	IsDefault bool
	Error     error
}

func NewFloatValueDefault(default_value float64) *FloatValue {
	return &FloatValue{
		Value:     default_value,
		IsDefault: true,
		Error:     nil,
	}
}

func NewFloatValue() *FloatValue {
	return NewFloatValueDefault(0)
}

func (val *FloatValue) Set(raw string) error {
	actual, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	val.IsDefault = false
	val.Value = actual
	return nil
}

func (val *FloatValue) String() string {
	return strconv.FormatFloat(val.Value, 'g', -1, 64)
}

// StringValue
type StringValue struct {
	Value     string
	IsDefault bool
	Error     error
}

func NewStringValueDefault(default_value string) *StringValue {
	return &StringValue{
		Value:     default_value,
		IsDefault: true,
		Error:     nil,
	}
}

func NewStringValue() *StringValue {
	return NewStringValueDefault("")
}

func (val *StringValue) Set(raw string) error {
	val.Value = raw
	val.IsDefault = false
	return nil
}

func (val *StringValue) String() string {
	return val.Value
}

// BoolValue
type BoolValue struct {
	Value     bool
	IsDefault bool
	Error     error
}

func NewBoolValueDefault(bool_default bool) *BoolValue {
	return &BoolValue{
		Value:     bool_default,
		IsDefault: true,
		Error:     nil,
	}
}

func NewBoolValue() *BoolValue {
	return NewBoolValueDefault(false)
}

func (val *BoolValue) Set(raw string) error {
	switch lower := strings.ToLower(raw); lower {
	case "true":
		val.Value = true
	case "false":
		val.Value = false
	default:
		return fmt.Errorf("Invalid value: %v", raw)
	}

	val.IsDefault = false
	return nil
}

func (val *BoolValue) String() string {
	if val.Value {
		return "true"
	}
	return "false"
}

// NetEndpointValue
type NetEndpointValue struct {
	Scheme       string
	Host         string
	Port         uint32
	HasPort      bool
	IsDefault    bool
	Error        error
	ValidSchemes []string
}

func (val *NetEndpointValue) IsSchemeValid(scheme string) bool {
	for _, valid_scheme := range val.ValidSchemes {
		if scheme == valid_scheme {
			return true
		}
	}
	return false
}

func (val *NetEndpointValue) SetAuthority(authority string) error {
	if authority == "" {
		return nil
	}
	if strings.Contains(authority, "/") {
		return fmt.Errorf("Invalid character \"/\"")
	}

	host, port, has_port := authority, "0", false
	if idx := strings.LastIndex(authority, ":"); idx != -1 {
		has_port = true
		host, port = authority[:idx], authority[idx+1:]
	}

	act_port, err := strconv.ParseUint(port, 10, 32)
	if err != nil {
		return fmt.Errorf("Port should be an integer: %s", port)
	}
	val.Port = uint32(act_port)
	val.Host = host
	val.HasPort = has_port
	return nil
}

func NewNetEndpointValueDefault(validSchemes []string, netEndpoint string) (*NetEndpointValue, error) {
	new_instance := &NetEndpointValue{
		ValidSchemes: validSchemes,
	}
	err := new_instance.Set(netEndpoint)
	if err != nil {
		return nil, err
	}
	new_instance.IsDefault = true
	return new_instance, nil
}

func NewNetEndpointValue(validSchemes []string) (*NetEndpointValue, error) {
	return NewNetEndpointValueDefault(validSchemes, "")
}

func (val *NetEndpointValue) Set(raw string) error {
	var scheme, authority string
	var err error

	if raw != "" {
		idx_colon := strings.Index(raw, "://")
		if idx_colon != -1 {
			scheme = raw[:idx_colon]
			authority = raw[idx_colon+3:]
			if !val.IsSchemeValid(scheme) {
				val.Error = fmt.Errorf("Unsupported network endpoint scheme: %v", scheme)
				return val.Error
			}
		} else {
			authority = raw
		}

		if err = val.SetAuthority(authority); err != nil {
			val.Error = fmt.Errorf("Invalid authority format: %v", err.Error())
			return val.Error
		}
	}
	val.Scheme = scheme
	val.IsDefault = false
	return nil
}

func (val *NetEndpointValue) String() string {
	scheme_raw := ""
	if val.Scheme != "" {
		scheme_raw = val.Scheme + "://"
	}
	return scheme_raw + val.AuthorityString()
}

func (val *NetEndpointValue) AuthorityString() string {
	if val.HasPort {
		return fmt.Sprintf("%v:%v", val.Host, val.Port)
	}
	return val.Host
}
