//go:build linux

package ime

import (
	"fmt"
	"html"
	"os"
	"os/exec"
	"path/filepath"
)

const componentFile = "kanaime.xml"

// IBusComponentDir is where IBus looks for per-user components.
func IBusComponentDir() (string, error) {
	if dir := os.Getenv("IBUS_COMPONENT_PATH"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "ibus", "component"), nil
}

// IBusComponentXML describes the engine to ibus-daemon, which starts
// enginePath with --ibus when the engine is first selected.
func IBusComponentXML(enginePath string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<component>
    <name>%s</name>
    <description>kanaime Japanese input method</description>
    <exec>%s --ibus</exec>
    <version>1.0</version>
    <author>kanaime</author>
    <license>MIT</license>
    <textdomain>kanaime</textdomain>
    <engines>
        <engine>
            <name>%s</name>
            <language>ja</language>
            <license>MIT</license>
            <author>kanaime</author>
            <layout>jp</layout>
            <longname>kanaime</longname>
            <description>Romaji to kana-kanji conversion</description>
            <rank>50</rank>
            <symbol>あ</symbol>
        </engine>
    </engines>
</component>
`, KanaimeBusName, html.EscapeString(enginePath), KanaimeEngineName)
}

// InstallIBusComponent writes the component file into dir and returns its
// path. Run `ibus restart` afterwards to load it.
func InstallIBusComponent(dir, enginePath string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, componentFile)
	if err := os.WriteFile(path, []byte(IBusComponentXML(enginePath)), 0o644); err != nil {
		return "", fmt.Errorf("write component: %w", err)
	}
	return path, nil
}

// UninstallIBusComponent removes the component file from dir.
func UninstallIBusComponent(dir string) error {
	err := os.Remove(filepath.Join(dir, componentFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// RestartIBus asks ibus-daemon to reload its components.
func RestartIBus() error {
	return exec.Command("ibus", "restart").Run()
}
