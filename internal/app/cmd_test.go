package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{name: "引数なしはrun", args: nil, want: CommandRun},
		{name: "空スライスはrun", args: []string{}, want: CommandRun},
		{name: "run指定", args: []string{"run"}, want: CommandRun},
		{name: "once指定", args: []string{"once"}, want: CommandOnce},
		{name: "migrate指定", args: []string{"migrate"}, want: CommandMigrate},
		{name: "healthcheck指定", args: []string{"healthcheck"}, want: CommandHealthcheck},
		{name: "未知のコマンドはrun", args: []string{"unknown"}, want: CommandRun},
		{name: "後続引数は無視", args: []string{"once", "extra"}, want: CommandOnce},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %v, want %v", tt.args, got, tt.want)
			}
		})
	}
}
