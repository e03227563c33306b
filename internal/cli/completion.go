package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BashCompletion is the bash completion script for adminctl.
const BashCompletion = `#!/bin/bash
# Bash completion for adminctl

_adminctl_completion() {
    local cur prev
    COMPREPLY=()
    cur="${COMP_WORDS[COMP_CWORD]}"
    prev="${COMP_WORDS[COMP_CWORD-1]}"

    local commands="login register logout whoami queries users requests completion help"
    local queries_cmds="list no-results stats get"
    local users_cmds="list get"
    local requests_cmds="list stats get update delete submit"

    case "${prev}" in
        queries)
            COMPREPLY=( $(compgen -W "${queries_cmds}" -- ${cur}) )
            return 0
            ;;
        users)
            COMPREPLY=( $(compgen -W "${users_cmds}" -- ${cur}) )
            return 0
            ;;
        requests)
            COMPREPLY=( $(compgen -W "${requests_cmds}" -- ${cur}) )
            return 0
            ;;
        --status)
            COMPREPLY=( $(compgen -W "pending contacted registered ignored" -- ${cur}) )
            return 0
            ;;
        --role)
            COMPREPLY=( $(compgen -W "user admin" -- ${cur}) )
            return 0
            ;;
        --order)
            COMPREPLY=( $(compgen -W "asc desc" -- ${cur}) )
            return 0
            ;;
        completion)
            COMPREPLY=( $(compgen -W "bash zsh fish" -- ${cur}) )
            return 0
            ;;
    esac

    if [[ ${COMP_CWORD} -eq 1 ]]; then
        COMPREPLY=( $(compgen -W "${commands}" -- ${cur}) )
    fi
    return 0
}

complete -F _adminctl_completion adminctl
`

// ZshCompletion is the zsh completion script for adminctl.
const ZshCompletion = `#compdef adminctl

_adminctl() {
    local -a commands
    commands=(
        'login:Sign in and store the session'
        'register:Create an account and sign in'
        'logout:Forget the stored session'
        'whoami:Show the signed-in account'
        'queries:Inspect the search query log'
        'users:Browse registered users'
        'requests:Manage early-access requests'
        'completion:Generate shell completion script'
        'help:Show help information'
    )

    local -a queries_cmds
    queries_cmds=(
        'list:List logged queries'
        'no-results:List queries without results'
        'stats:Show query statistics'
        'get:Show one query'
    )

    local -a users_cmds
    users_cmds=(
        'list:List users'
        'get:Show one user'
    )

    local -a requests_cmds
    requests_cmds=(
        'list:List requests'
        'stats:Show request statistics'
        'get:Show one request'
        'update:Change status or notes'
        'delete:Delete a request'
        'submit:Submit a request through the public form'
    )

    _arguments -C \
        '1: :->command' \
        '*:: :->args'

    case $state in
        command)
            _describe 'command' commands
            ;;
        args)
            case $words[1] in
                queries)
                    _describe 'queries command' queries_cmds
                    ;;
                users)
                    _describe 'users command' users_cmds
                    ;;
                requests)
                    _describe 'requests command' requests_cmds
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_adminctl "$@"
`

// FishCompletion is the fish completion script for adminctl.
const FishCompletion = `# Fish completion for adminctl

complete -c adminctl -f -n "__fish_use_subcommand" -a "login" -d "Sign in and store the session"
complete -c adminctl -f -n "__fish_use_subcommand" -a "register" -d "Create an account and sign in"
complete -c adminctl -f -n "__fish_use_subcommand" -a "logout" -d "Forget the stored session"
complete -c adminctl -f -n "__fish_use_subcommand" -a "whoami" -d "Show the signed-in account"
complete -c adminctl -f -n "__fish_use_subcommand" -a "queries" -d "Inspect the search query log"
complete -c adminctl -f -n "__fish_use_subcommand" -a "users" -d "Browse registered users"
complete -c adminctl -f -n "__fish_use_subcommand" -a "requests" -d "Manage early-access requests"
complete -c adminctl -f -n "__fish_use_subcommand" -a "completion" -d "Generate shell completion"

complete -c adminctl -f -n "__fish_seen_subcommand_from queries" -a "list no-results stats get"
complete -c adminctl -f -n "__fish_seen_subcommand_from users" -a "list get"
complete -c adminctl -f -n "__fish_seen_subcommand_from requests" -a "list stats get update delete submit"
complete -c adminctl -f -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"

complete -c adminctl -l status -x -a "pending contacted registered ignored" -d "Request status"
complete -c adminctl -l role -x -a "user admin" -d "User role"
complete -c adminctl -l order -x -a "asc desc" -d "Sort order"
complete -c adminctl -l json -d "Print raw JSON"
`

func completionScript(shell string) (string, error) {
	switch shell {
	case "bash":
		return BashCompletion, nil
	case "zsh":
		return ZshCompletion, nil
	case "fish":
		return FishCompletion, nil
	default:
		return "", fmt.Errorf("unsupported shell: %s (supported: bash, zsh, fish)", shell)
	}
}

// GenerateCompletion writes the completion script for shell to w.
func GenerateCompletion(w io.Writer, shell string) error {
	script, err := completionScript(shell)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, script)
	return err
}

// InstallCompletion installs the completion script under home and returns
// where it was written.
func InstallCompletion(home, shell string) (string, error) {
	script, err := completionScript(shell)
	if err != nil {
		return "", err
	}

	var installPath string
	switch shell {
	case "bash":
		installPath = filepath.Join(home, ".bash_completion.d", "adminctl")
	case "zsh":
		installPath = filepath.Join(home, ".zsh", "completion", "_adminctl")
	case "fish":
		installPath = filepath.Join(home, ".config", "fish", "completions", "adminctl.fish")
	}

	if err := os.MkdirAll(filepath.Dir(installPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create completion directory: %w", err)
	}
	if err := os.WriteFile(installPath, []byte(script), 0644); err != nil {
		return "", fmt.Errorf("failed to write completion script: %w", err)
	}
	return installPath, nil
}
