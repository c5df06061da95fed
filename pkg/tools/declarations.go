package tools

// Parameter types as named by the model API.
const (
	TypeString = "STRING"
	TypeNumber = "NUMBER"
)

// Param describes one function argument.
type Param struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Declaration describes a function the model may call.
type Declaration struct {
	Name        string
	Description string
	Params      []Param
}

// Required returns the names of required parameters in declaration order.
func (d Declaration) Required() []string {
	var req []string
	for _, p := range d.Params {
		if p.Required {
			req = append(req, p.Name)
		}
	}
	return req
}

// JSONSchema returns the parameters as an OpenAPI-style object schema.
func (d Declaration) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Params))
	for _, p := range d.Params {
		props[p.Name] = map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	schema := map[string]any{
		"type":       "OBJECT",
		"properties": props,
	}
	if req := d.Required(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

// Declarations returns the functions the router can handle.
func Declarations() []Declaration {
	return []Declaration{
		{
			Name: NameDeliverMessage,
			Description: "Sends a text message to the user via Telegram. Use this ONLY when the user explicitly asks to " +
				"send a message or text someone. If no recipient is mentioned, the user's configured Telegram ID is used.",
			Params: []Param{
				{Name: "message", Type: TypeString, Description: "The content of the message to be sent.", Required: true},
				{Name: "recipientId", Type: TypeString, Description: "The Telegram chat_id of the recipient. Optional; the saved ID is used when omitted."},
			},
		},
		{
			Name: NameScheduleReminder,
			Description: "Sets a reminder for the user. The reminder triggers a notification and a Telegram message if configured. " +
				"You MUST calculate the delay in seconds from the user's request.",
			Params: []Param{
				{Name: "message", Type: TypeString, Description: "The content of the reminder message.", Required: true},
				{Name: "delayInSeconds", Type: TypeNumber, Description: `Seconds from now until the reminder fires (e.g. "in 5 minutes" is 300).`, Required: true},
			},
		},
	}
}
