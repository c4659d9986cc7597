// Package portutil 本机端口的占用检测、查找和回收
package portutil

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// MaxPort FindAvailablePort 扫描的上限
const MaxPort = 9999

// ErrNoAvailablePort 扫描范围内没有空闲端口
var ErrNoAvailablePort = errors.New("没有可用的端口")

// IsPortInUse 尝试监听端口，监听失败即视为被占用
func IsPortInUse(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return true
	}
	_ = l.Close()
	return false
}

// FindAvailablePort 从 start 开始找第一个空闲端口
func FindAvailablePort(start int) (int, error) {
	if start <= 0 {
		start = 1
	}
	for port := start; port <= MaxPort; port++ {
		if !IsPortInUse(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: %d-%d", ErrNoAvailablePort, start, MaxPort)
}

// FindPIDsByPort 查找监听该端口的进程，不包含当前进程
// unix 下用 lsof，windows 下解析 netstat -ano。
func FindPIDsByPort(ctx context.Context, port int) ([]int, error) {
	var (
		out []byte
		err error
	)
	if runtime.GOOS == "windows" {
		out, err = exec.CommandContext(ctx, "netstat", "-ano", "-p", "tcp").Output()
	} else {
		out, err = exec.CommandContext(ctx, "lsof", "-ti", "tcp:"+strconv.Itoa(port)).Output()
	}
	if err != nil {
		// lsof 没找到进程时退出码为 1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("查找端口 %d 的进程失败: %w", port, err)
	}

	if runtime.GOOS == "windows" {
		return excludeSelf(parseNetstat(out, port)), nil
	}
	return excludeSelf(parsePIDList(out)), nil
}

// KillProcessByPort 结束占用端口的进程，返回被结束的 PID
func KillProcessByPort(ctx context.Context, port int) ([]int, error) {
	if !IsPortInUse(port) {
		return nil, nil
	}
	pids, err := FindPIDsByPort(ctx, port)
	if err != nil {
		return nil, err
	}

	var (
		killed []int
		errs   []error
	)
	for _, pid := range pids {
		if err := killPID(ctx, pid); err != nil {
			errs = append(errs, fmt.Errorf("终止进程 %d 失败: %w", pid, err))
			continue
		}
		killed = append(killed, pid)
	}
	return killed, errors.Join(errs...)
}

// WaitPortFree 等待端口释放，超时返回 false
func WaitPortFree(port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !IsPortInUse(port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func killPID(ctx context.Context, pid int) error {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "taskkill", "/F", "/PID", strconv.Itoa(pid)).Run()
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func parsePIDList(out []byte) []int {
	var pids []int
	seen := map[int]bool{}
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

// parseNetstat 取本地地址以 :port 结尾且处于 LISTENING 的行的最后一列
func parseNetstat(out []byte, port int) []int {
	suffix := ":" + strconv.Itoa(port)
	var pids []int
	seen := map[int]bool{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || !strings.HasSuffix(fields[1], suffix) {
			continue
		}
		if !strings.EqualFold(fields[3], "LISTENING") {
			continue
		}
		pid, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

func excludeSelf(pids []int) []int {
	self := os.Getpid()
	out := pids[:0]
	for _, pid := range pids {
		if pid != self {
			out = append(out, pid)
		}
	}
	return out
}
