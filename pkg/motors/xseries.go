package motors

// XSeries covers the one- and two-byte slots shared by the X-series
// (XM430/XC430/XH430) control table. Four-byte slots such as goal and
// present position are outside what this driver reads and are omitted.
var XSeries = Catalog{
	"model_number":           Reg(0, 2),
	"firmware_version":       Reg(6, 1),
	"id":                     Reg(7, 1),
	"baud_rate":              Reg(8, 1),
	"return_delay_time":      Reg(9, 1),
	"drive_mode":             Reg(10, 1),
	"operating_mode":         Reg(11, 1),
	"protocol_type":          Reg(13, 1),
	"temperature_limit":      Reg(31, 1),
	"max_voltage_limit":      Reg(32, 2),
	"min_voltage_limit":      Reg(34, 2),
	"pwm_limit":              Reg(36, 2),
	"current_limit":          Reg(38, 2),
	"shutdown":               Reg(63, 1),
	"torque_enable":          Reg(64, 1),
	"led":                    Reg(65, 1),
	"status_return_level":    Reg(68, 1),
	"registered_instruction": Reg(69, 1),
	"hardware_error":         Reg(70, 1),
	"bus_watchdog":           Reg(98, 1),
	"goal_pwm":               Reg(100, 2),
	"goal_current":           Reg(102, 2),
	"realtime_tick":          Reg(120, 2),
	"moving":                 Reg(122, 1),
	"moving_status":          Reg(123, 1),
	"present_pwm":            Reg(124, 2),
	"present_load":           Reg(126, 2),
	"present_input_voltage":  Reg(144, 2),
	"present_temperature":    Reg(146, 1),
}
