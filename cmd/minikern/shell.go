package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/minikern/minikern/pkg/file"
	"github.com/minikern/minikern/pkg/fs"
	"github.com/minikern/minikern/pkg/kernel"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	errColor    = color.New(color.FgRed)
	dirColor    = color.New(color.FgBlue, color.Bold)
	linkColor   = color.New(color.FgMagenta)
)

// runShell drives a small interactive shell over the syscall surface. Every
// command maps onto one or two syscalls; the shell itself keeps no filesystem
// state beyond a printable working-directory string.
func runShell(ctx context.Context, proc *kernel.Proc) {
	scanner := bufio.NewScanner(os.Stdin)
	cwd := "/"

	for {
		promptColor.Printf("minikern:%s> ", cwd)
		if ctx.Err() != nil || !scanner.Scan() {
			fmt.Println()
			return
		}

		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "exit", "quit":
			return
		case "help":
			printHelp()
		case "ls":
			target := cwd
			if len(args) > 1 {
				target = args[1]
			}
			listDir(ctx, proc, target)
		case "cd":
			if len(args) < 2 {
				errColor.Println("usage: cd <path>")
				continue
			}
			if proc.Chdir(ctx, args[1]) < 0 {
				errColor.Printf("cd: %s failed\n", args[1])
				continue
			}
			if path.IsAbs(args[1]) {
				cwd = path.Clean(args[1])
			} else {
				cwd = path.Clean(path.Join(cwd, args[1]))
			}
		case "cat":
			if len(args) < 2 {
				errColor.Println("usage: cat <path>")
				continue
			}
			catFile(ctx, proc, args[1])
		case "write":
			if len(args) < 3 {
				errColor.Println("usage: write <path> <text...>")
				continue
			}
			writeFile(ctx, proc, args[1], strings.Join(args[2:], " "))
		case "mkdir":
			if len(args) < 2 || proc.Mkdir(ctx, args[1]) < 0 {
				errColor.Println("mkdir failed")
			}
		case "rm":
			if len(args) < 2 || proc.Unlink(ctx, args[1]) < 0 {
				errColor.Println("rm failed")
			}
		case "ln":
			if len(args) < 3 || proc.Link(ctx, args[1], args[2]) < 0 {
				errColor.Println("ln failed")
			}
		case "symlink":
			if len(args) < 3 || proc.Symlink(ctx, args[1], args[2]) < 0 {
				errColor.Println("symlink failed")
			}
		case "readlink":
			if len(args) < 2 {
				errColor.Println("usage: readlink <path>")
				continue
			}
			target, n := proc.Readlink(ctx, args[1])
			switch {
			case n == -2:
				errColor.Printf("readlink: %s is a broken link\n", args[1])
			case n < 0:
				errColor.Printf("readlink: %s is not a symlink\n", args[1])
			default:
				linkColor.Println(target)
			}
		case "stat":
			if len(args) < 2 {
				errColor.Println("usage: stat <path>")
				continue
			}
			statFile(ctx, proc, args[1])
		case "mknod":
			if len(args) < 4 {
				errColor.Println("usage: mknod <path> <major> <minor>")
				continue
			}
			major, err1 := strconv.ParseUint(args[2], 10, 32)
			minor, err2 := strconv.ParseUint(args[3], 10, 32)
			if err1 != nil || err2 != nil || proc.Mknod(ctx, args[1], uint32(major), uint32(minor)) < 0 {
				errColor.Println("mknod failed")
			}
		case "tag":
			if len(args) < 4 {
				errColor.Println("usage: tag <path> <key> <value>")
				continue
			}
			withFD(ctx, proc, args[1], func(fd int) {
				if proc.Ftag(ctx, fd, args[2], args[3]) < 0 {
					errColor.Println("tag failed")
				}
			})
		case "untag":
			if len(args) < 3 {
				errColor.Println("usage: untag <path> <key>")
				continue
			}
			withFD(ctx, proc, args[1], func(fd int) {
				if proc.Funtag(ctx, fd, args[2]) < 0 {
					errColor.Println("untag failed")
				}
			})
		case "gettag":
			if len(args) < 3 {
				errColor.Println("usage: gettag <path> <key>")
				continue
			}
			withFD(ctx, proc, args[1], func(fd int) {
				value, n := proc.Gettag(ctx, fd, args[2])
				if n < 0 {
					errColor.Println("gettag failed")
					return
				}
				fmt.Println(value)
			})
		case "pipe":
			pipeDemo(ctx, proc, strings.Join(args[1:], " "))
		case "exec":
			if len(args) < 2 {
				errColor.Println("usage: exec <path> [args...]")
				continue
			}
			if proc.Exec(ctx, args[1], args[1:]) < 0 {
				errColor.Println("exec failed")
			}
		default:
			errColor.Printf("unknown command %q (try help)\n", args[0])
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  ls [path]                list directory entries
  cd <path>                change working directory
  cat <path>               print file contents
  write <path> <text>      create/overwrite file with text
  mkdir <path>             create directory
  rm <path>                unlink file or empty directory
  ln <old> <new>           hard link
  symlink <target> <path>  symbolic link
  readlink <path>          print stored link target
  stat <path>              inode metadata
  mknod <path> <maj> <min> device node
  tag/untag/gettag         inode tags via an fd
  pipe [text]              round-trip text through a pipe
  exec <path> [args]       run a program image
  exit`)
}

// withFD opens path read-only around fn and always closes it.
func withFD(ctx context.Context, proc *kernel.Proc, p string, fn func(fd int)) {
	fd := proc.Open(ctx, p, kernel.ORdonly)
	if fd < 0 {
		errColor.Printf("open %s failed\n", p)
		return
	}
	defer proc.Close(ctx, fd)
	fn(fd)
}

// listDir reads a directory fd and decodes its fixed-size entry records.
func listDir(ctx context.Context, proc *kernel.Proc, p string) {
	withFD(ctx, proc, p, func(fd int) {
		buf := make([]byte, fs.DirentSize)
		for {
			n := proc.Read(ctx, fd, buf)
			if n < fs.DirentSize {
				return
			}
			inum := binary.LittleEndian.Uint64(buf[:8])
			if inum == 0 {
				continue
			}
			name := strings.TrimRight(string(buf[8:]), "\x00")
			printEntry(ctx, proc, p, name, inum)
		}
	})
}

func printEntry(ctx context.Context, proc *kernel.Proc, dir, name string, inum uint64) {
	full := path.Join(dir, name)
	if _, n := proc.Readlink(ctx, full); n >= 0 || n == -2 {
		linkColor.Printf("%-20s", name)
		fmt.Printf(" inum=%d symlink\n", inum)
		return
	}

	fd := proc.Open(ctx, full, kernel.ORdonly)
	if fd < 0 {
		fmt.Printf("%-20s inum=%d\n", name, inum)
		return
	}
	defer proc.Close(ctx, fd)

	st, ok := proc.Fstat(ctx, fd)
	if ok < 0 {
		fmt.Printf("%-20s inum=%d\n", name, inum)
		return
	}
	if st.Type == fs.TypeDir {
		dirColor.Printf("%-20s", name)
	} else {
		fmt.Printf("%-20s", name)
	}
	fmt.Printf(" %-6s inum=%d nlink=%d size=%d\n", st.Type, st.Inum, st.Nlink, st.Size)
}

func catFile(ctx context.Context, proc *kernel.Proc, p string) {
	withFD(ctx, proc, p, func(fd int) {
		buf := make([]byte, 512)
		for {
			n := proc.Read(ctx, fd, buf)
			if n <= 0 {
				return
			}
			os.Stdout.Write(buf[:n])
		}
	})
}

func writeFile(ctx context.Context, proc *kernel.Proc, p, text string) {
	fd := proc.Open(ctx, p, kernel.OWronly|kernel.OCreate)
	if fd < 0 {
		errColor.Printf("open %s failed\n", p)
		return
	}
	defer proc.Close(ctx, fd)

	if proc.Write(ctx, fd, []byte(text)) < 0 {
		errColor.Println("write failed")
	}
}

func statFile(ctx context.Context, proc *kernel.Proc, p string) {
	withFD(ctx, proc, p, func(fd int) {
		st, ok := proc.Fstat(ctx, fd)
		if ok < 0 {
			errColor.Println("stat failed")
			return
		}
		fmt.Printf("dev=%d inum=%d type=%s nlink=%d size=%d\n",
			st.Dev, st.Inum, st.Type, st.Nlink, st.Size)
	})
}

// pipeDemo pushes text through a kernel pipe and reads it back.
func pipeDemo(ctx context.Context, proc *kernel.Proc, text string) {
	if text == "" {
		text = "hello from the write end"
	}

	rfd, wfd := proc.Pipe(ctx)
	if rfd < 0 {
		errColor.Println("pipe failed")
		return
	}
	defer proc.Close(ctx, rfd)

	go func() {
		proc.Write(ctx, wfd, []byte(text))
		proc.Close(ctx, wfd)
	}()

	buf := make([]byte, file.PipeSize)
	for {
		n := proc.Read(ctx, rfd, buf)
		if n <= 0 {
			fmt.Println()
			return
		}
		os.Stdout.Write(buf[:n])
	}
}
