package domain

type CommandName string

const (
	CommandScanSlaves CommandName = "scan_slaves"
	CommandStartGame  CommandName = "start_game"
	CommandLightOn    CommandName = "light_on"
	CommandLightOff   CommandName = "light_off"
	CommandStopGame   CommandName = "stop_game"
)

const ColorRandom = "random"

// Command is an outbound instruction for the master hub. Only the fields
// relevant to Name are encoded on the wire.
type Command struct {
	Name        CommandName
	Mode        GameMode
	DurationSec int
	Slaves      int
	Slave       SlaveID
	Color       string
}

func ScanSlaves() Command {
	return Command{Name: CommandScanSlaves}
}

func StartGame(mode GameMode, durationSec, slaves int) Command {
	return Command{Name: CommandStartGame, Mode: mode, DurationSec: durationSec, Slaves: slaves}
}

func LightOn(slave SlaveID) Command {
	return Command{Name: CommandLightOn, Slave: slave, Color: ColorRandom}
}

func LightOff(slave SlaveID) Command {
	return Command{Name: CommandLightOff, Slave: slave}
}

func StopGame() Command {
	return Command{Name: CommandStopGame}
}
