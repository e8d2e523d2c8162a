package rtvars

// OutputFormatter receives the new value of the "output_format" variable
// whenever it changes, letting a front end swap its result renderer
// in place — an assignment hook used to switch output formatters.
type OutputFormatter interface {
	SetFormat(format string)
}

// NewDefault builds the registry of runtime variables a pgbackupctl
// session exposes through SET/RESET/SHOW. formatter may be nil; when set,
// its SetFormat is wired as the output_format variable's assignment hook.
func NewDefault(formatter OutputFormatter) (*Registry, error) {
	r := New()

	variables := []Variable{
		{
			Name:       "compress_type",
			Kind:       KindEnum,
			Default:    "gzip",
			EnumValues: []string{"none", "gzip", "zstd", "xz", "plain"},
		},
		{
			Name:    "max_rate",
			Kind:    KindInteger,
			Default: "0",
			Min:     0,
			Max:     1 << 20, // KiB/s; 0 means unthrottled
		},
		{
			Name:    "fast_checkpoint",
			Kind:    KindBool,
			Default: "false",
		},
		{
			Name:    "wait_for_wal",
			Kind:    KindBool,
			Default: "true",
		},
		{
			Name:    "noverify_checksums",
			Kind:    KindBool,
			Default: "false",
		},
		{
			Name:       "output_format",
			Kind:       KindEnum,
			Default:    "text",
			EnumValues: []string{"text", "json"},
		},
		{
			Name:       "log_level",
			Kind:       KindEnum,
			Default:    "info",
			EnumValues: []string{"debug", "info", "warn", "error"},
		},
		{
			Name:    "max_copy_instances",
			Kind:    KindInteger,
			Default: "4",
			Min:     1,
			Max:     256,
		},
	}

	if formatter != nil {
		for i := range variables {
			if variables[i].Name == "output_format" {
				variables[i].OnSet = formatter.SetFormat
			}
		}
	}

	for _, v := range variables {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}
