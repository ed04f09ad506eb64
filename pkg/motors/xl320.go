package motors

// XL320 is the XL-320 control table, restricted to its one- and two-byte
// slots. Positions and speeds are 10-bit values in two-byte registers.
var XL320 = Catalog{
	"model_number":        Reg(0x00, 2),
	"firmware_version":    Reg(0x02, 1),
	"id":                  Reg(0x03, 1),
	"baud_rate":           Reg(0x04, 1),
	"return_delay_time":   Reg(0x05, 1),
	"cw_angle_limit":      Reg(0x06, 2),
	"ccw_angle_limit":     Reg(0x08, 2),
	"control_mode":        Reg(0x0B, 1),
	"temperature_limit":   Reg(0x0C, 1),
	"min_voltage_limit":   Reg(0x0D, 1),
	"max_voltage_limit":   Reg(0x0E, 1),
	"max_torque":          Reg(0x0F, 2),
	"status_return_level": Reg(0x11, 1),
	"shutdown":            Reg(0x12, 1),
	"torque_enable":       Reg(0x18, 1),
	"led":                 Reg(0x19, 1),
	"goal_position":       Reg(0x1E, 2),
	"moving_speed":        Reg(0x20, 2),
	"torque_limit":        Reg(0x23, 2),
	"present_position":    Reg(0x25, 2),
	"present_speed":       Reg(0x27, 2),
	"present_load":        Reg(0x29, 2),
	"present_voltage":     Reg(0x2D, 1),
	"present_temperature": Reg(0x2E, 1),
	"registered":          Reg(0x2F, 1),
	"moving":              Reg(0x31, 1),
	"hardware_error":      Reg(0x32, 1),
	"punch":               Reg(0x33, 2),
}
