package shift

import "time"

// Type representa o turno (morning, afternoon, night)
type Type string

const (
	TypeMorning   Type = "morning"
	TypeAfternoon Type = "afternoon"
	TypeNight     Type = "night"
)

// Limites dos turnos em horas cheias. Intervalos semi-abertos: [início, fim).
const (
	MorningStartHour   = 6
	AfternoonStartHour = 14
	NightStartHour     = 22
)

// Info descreve um turno para exibição
type Info struct {
	Type  Type   `json:"type"`
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

var shiftInfo = map[Type]Info{
	TypeMorning:   {Type: TypeMorning, Name: "กะเช้า", Start: "06:00", End: "14:00"},
	TypeAfternoon: {Type: TypeAfternoon, Name: "กะบ่าย", Start: "14:00", End: "22:00"},
	TypeNight:     {Type: TypeNight, Name: "กะดึก", Start: "22:00", End: "06:00"},
}

// Classify mapeia um instante de relógio para o turno correspondente.
// A hora é lida na localização do próprio instante.
func Classify(t time.Time) Type {
	hour := t.Hour()
	switch {
	case hour >= MorningStartHour && hour < AfternoonStartHour:
		return TypeMorning
	case hour >= AfternoonStartHour && hour < NightStartHour:
		return TypeAfternoon
	default:
		return TypeNight
	}
}

// ShiftInfo retorna o nome e os limites de um turno
func ShiftInfo(t Type) (Info, bool) {
	info, ok := shiftInfo[t]
	return info, ok
}

// Valid reports whether t is one of the three known shift types.
func (t Type) Valid() bool {
	_, ok := shiftInfo[t]
	return ok
}

// ParseType converte uma string em Type
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", ErrInvalidShiftType
	}
	return t, nil
}
