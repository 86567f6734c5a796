package imu

import "fmt"

// CSVHeader is the first line of every capture log.
const CSVHeader = "Sample,Acc.X,Acc.Y,Acc.Z,Gyro.X,Gyro.Y,Gyro.Z,Temp\n"

// Raw is one burst read of the motion sensor, in register counts.
type Raw struct {
	Accel [3]int16 `json:"accel"`
	Gyro  [3]int16 `json:"gyro"`
	Temp  int16    `json:"temp_raw"`
}

// Sample is a single captured record as written to the log.
type Sample struct {
	Index int `json:"index"` // 1-based position within the capture

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`

	TempC float64 `json:"temp_c"`
}

// TempCelsius converts the raw die temperature register to °C.
func TempCelsius(raw int16) float64 {
	return float64(raw)/340.0 + 36.53
}

// NewSample builds the record for the index-th reading of a capture.
func NewSample(index int, r Raw) Sample {
	return Sample{
		Index: index,
		Ax:    r.Accel[0],
		Ay:    r.Accel[1],
		Az:    r.Accel[2],
		Gx:    r.Gyro[0],
		Gy:    r.Gyro[1],
		Gz:    r.Gyro[2],
		TempC: TempCelsius(r.Temp),
	}
}

// CSV renders the sample as one newline-terminated log line.
func (s Sample) CSV() string {
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d,%d,%.2f\n",
		s.Index, s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz, s.TempC)
}
