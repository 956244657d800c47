package minidrive

// Command is one entry of the static operator command table. Entries with a
// Class describe actuator motion and route through the auto-stop handler;
// the rest are single-shot frames.
type Command struct {
	Name        string
	CANID       string
	Data        string
	Type        FrameType
	Class       string
	Stop        bool
	Description string
}

var commandTable = []Command{
	{Name: "door_open", CANID: "0x18C4D2D1", Data: "01 00 00 00 00 00 00 00", Type: FrameExtended, Class: "door", Description: "open the cabin door"},
	{Name: "door_close", CANID: "0x18C4D2D1", Data: "02 00 00 00 00 00 00 00", Type: FrameExtended, Class: "door", Description: "close the cabin door"},
	{Name: "door_stop", CANID: "0x18C4D2D1", Data: "00 00 00 00 00 00 00 00", Type: FrameExtended, Class: "door", Stop: true, Description: "halt door motion"},
	{Name: "suspension_up", CANID: "0x18C4D2D2", Data: "01 00 00 00 00 00 00 00", Type: FrameExtended, Class: "suspension", Description: "raise the suspension"},
	{Name: "suspension_down", CANID: "0x18C4D2D2", Data: "02 00 00 00 00 00 00 00", Type: FrameExtended, Class: "suspension", Description: "lower the suspension"},
	{Name: "suspension_stop", CANID: "0x18C4D2D2", Data: "00 00 00 00 00 00 00 00", Type: FrameExtended, Class: "suspension", Stop: true, Description: "halt suspension motion"},
	{Name: "fan_level_0", CANID: "0x18C4D2D3", Data: "00 00 00 00 00 00 00 00", Type: FrameExtended, Description: "fan off"},
	{Name: "fan_level_1", CANID: "0x18C4D2D3", Data: "01 00 00 00 00 00 00 00", Type: FrameExtended, Description: "fan low"},
	{Name: "fan_level_2", CANID: "0x18C4D2D3", Data: "02 00 00 00 00 00 00 00", Type: FrameExtended, Description: "fan medium"},
	{Name: "fan_level_3", CANID: "0x18C4D2D3", Data: "03 00 00 00 00 00 00 00", Type: FrameExtended, Description: "fan high"},
	{Name: "light_mode_0", CANID: "0x18C4D2D4", Data: "00 00 00 00 00 00 00 00", Type: FrameExtended, Description: "lights off"},
	{Name: "light_mode_1", CANID: "0x18C4D2D4", Data: "01 00 00 00 00 00 00 00", Type: FrameExtended, Description: "running lights"},
	{Name: "light_mode_2", CANID: "0x18C4D2D4", Data: "02 00 00 00 00 00 00 00", Type: FrameExtended, Description: "full beams"},
	{Name: "start_driving", CANID: "0x18C4D2D5", Data: "01 00 00 00 00 00 00 00", Type: FrameExtended, Description: "enter driving mode"},
	{Name: "stop_driving", CANID: "0x18C4D2D5", Data: "00 00 00 00 00 00 00 00", Type: FrameExtended, Description: "leave driving mode"},
}

// Commands returns a copy of the operator command table.
func Commands() []Command {
	out := make([]Command, len(commandTable))
	copy(out, commandTable)
	return out
}

func LookupCommand(name string) (Command, bool) {
	for _, c := range commandTable {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// classStop returns the explicit stop entry for an actuator class. The stop
// entry doubles as the frame the auto-stop timer fires.
func classStop(class string) (Command, bool) {
	for _, c := range commandTable {
		if c.Class == class && c.Stop {
			return c, true
		}
	}
	return Command{}, false
}
