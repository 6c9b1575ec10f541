package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/tkc/ttrak/internal/config"
)

// clearValue を入力すると既存の値を消す
const clearValue = "-"

// setup は triggerSetup() を発行する。入力はControllerで検証・保存される
func (v *View) setup(ctx context.Context) error {
	cur := v.ctrl.SetupDefaults()

	fmt.Fprintln(v.out, "Integration setup (Enter keeps the current value, - clears it)")
	fmt.Fprintln(v.out, "GitHub: personal access token with repo scope, https://github.com/settings/tokens")
	fmt.Fprintln(v.out, "Linear: personal API key, https://linear.app/settings/api")
	fmt.Fprintln(v.out)

	in := config.SetupInput{}
	var err error
	if in.GitHubToken, err = v.askSecret(ctx, "GitHub token", cur.GitHubToken); err != nil {
		return err
	}
	if in.GitHubRepo, err = v.askValue(ctx, "GitHub repo (owner/repo)", cur.GitHubRepo); err != nil {
		return err
	}
	if in.LinearAPIKey, err = v.askSecret(ctx, "Linear API key", cur.LinearAPIKey); err != nil {
		return err
	}

	if (in.GitHubToken == "") != (in.GitHubRepo == "") {
		v.message = "✗ GitHub needs both a token and a repo"
		return nil
	}

	msg, err := v.ctrl.Setup(ctx, in)
	if err != nil {
		return err
	}
	v.message = msg
	return nil
}

func (v *View) askValue(ctx context.Context, label, cur string) (string, error) {
	val, err := v.ask(ctx, label, cur)
	if err != nil {
		return "", err
	}
	if val == clearValue {
		return "", nil
	}
	return val, nil
}

// askSecret は現在値を伏せて表示する
func (v *View) askSecret(ctx context.Context, label, cur string) (string, error) {
	val, err := v.ask(ctx, label, mask(cur))
	if err != nil {
		return "", err
	}
	switch val {
	case clearValue:
		return "", nil
	case mask(cur):
		return cur, nil
	}
	return val, nil
}

// mask は先頭と末尾4文字だけを残す
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
