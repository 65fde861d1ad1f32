//go:build linux

package hotkey

import "testing"

func TestComboState(t *testing.T) {
	type ev struct {
		code  uint16
		value int32
		want  comboEdge
	}
	tests := []struct {
		name   string
		events []ev
	}{
		{"full combo", []ev{
			{keyLCtrl, keyPress, comboNone},
			{keyLShift, keyPress, comboNone},
			{keySpace, keyPress, comboDown},
			{keySpace, keyRelease, comboUp},
		}},
		{"right modifiers", []ev{
			{keyRCtrl, keyPress, comboNone},
			{keyRShift, keyPress, comboNone},
			{keySpace, keyPress, comboDown},
		}},
		{"space without shift", []ev{
			{keyLCtrl, keyPress, comboNone},
			{keySpace, keyPress, comboNone},
			{keySpace, keyRelease, comboNone},
		}},
		{"auto repeat ignored", []ev{
			{keyLCtrl, keyPress, comboNone},
			{keyLShift, keyPress, comboNone},
			{keySpace, keyPress, comboDown},
			{keySpace, 2, comboNone},
			{keyLCtrl, 2, comboNone},
			{keySpace, keyRelease, comboUp},
		}},
		{"modifier released first", []ev{
			{keyLCtrl, keyPress, comboNone},
			{keyLShift, keyPress, comboNone},
			{keySpace, keyPress, comboDown},
			{keyLCtrl, keyRelease, comboNone},
			{keySpace, keyRelease, comboUp},
			{keySpace, keyPress, comboNone},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c comboState
			for i, e := range tt.events {
				if got := c.feed(e.code, e.value); got != e.want {
					t.Errorf("event %d (code %d value %d) = %v, want %v", i, e.code, e.value, got, e.want)
				}
			}
		})
	}
}
