package app

// Command はCLIのサブコマンドを表す。
type Command string

const (
	// CommandStub はローカル開発用のスタブバックエンドを起動する。
	CommandStub Command = "stub"
	// CommandHealthcheck はAPIの /health を確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"

	CommandLogin    Command = "login"
	CommandRegister Command = "register"
	CommandLogout   Command = "logout"
	CommandWhoami   Command = "whoami"
	CommandProfile  Command = "profile"

	CommandTrack   Command = "track"
	CommandHistory Command = "history"
	CommandStats   Command = "stats"
	CommandAnalyze Command = "analyze"
	CommandMeta    Command = "meta"
	CommandCompete Command = "compete"
	CommandReports Command = "reports"
	CommandDecay   Command = "decay"

	CommandGoogleDomains Command = "google-domains"
	CommandExtract       Command = "extract"
	CommandBlog          Command = "blog"

	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

var commands = map[string]Command{}

func init() {
	for _, c := range []Command{
		CommandStub, CommandHealthcheck,
		CommandLogin, CommandRegister, CommandLogout, CommandWhoami, CommandProfile,
		CommandTrack, CommandHistory, CommandStats, CommandAnalyze, CommandMeta,
		CommandCompete, CommandReports, CommandDecay,
		CommandGoogleDomains, CommandExtract, CommandBlog, CommandHelp,
	} {
		commands[string(c)] = c
	}
}

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を取り出す。
// 引数が空またはサポート外のコマンドの場合はCommandHelpを返す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandHelp, nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return CommandHelp, nil
	}
	return cmd, args[1:]
}

const usage = `usage: seokit <command> [flags]

Server:
  stub            ローカル用のスタブバックエンドを起動する
  healthcheck     APIの /health を確認する

Account:
  login           -email -password
  register        -name -email -password
  logout
  whoami
  profile

Tools:
  track           -domain -keywords a,b -location google.com
  history         -domain -keyword -days
  stats           -domain
  analyze         -url -strategy mobile|desktop
  meta            -url
  compete         -domain -competitors a.com,b.com
  reports         -q -type -page -limit
  decay

Offline:
  google-domains  [-country JP]
  extract         -url
  blog            -limit
`
