// Package binprograms holds the Lua source for the default /bin
// programs every freshly bootstrapped VM starts with. Players can
// overwrite or delete them like any other file.
package binprograms

// Echo prints its arguments joined by spaces, newline-terminated.
const Echo = `
local args = os.get_args()
local out = {}
for i = 1, #args do
    out[#out + 1] = args[i]
end
io.write(table.concat(out, " ") .. "\n")
`

// Cat writes the content of each path given in args to stdout.
const Cat = `
local args = os.get_args()
for i = 1, #args do
    local content = fs.read(args[i])
    if content then
        io.write(content)
    end
end
`

// Ls lists entries of the directory named by its first arg, or "." by
// default, one tab-separated row per entry.
const Ls = `
local args = os.get_args()
local path = (#args >= 1) and args[1] or "."
local entries = fs.ls(path)
for i = 1, #entries do
    local e = entries[i]
    io.write(e.name .. "\t" .. e.type .. "\t" .. tostring(e.size) .. "\t" .. e.owner .. "\n")
end
`

// Touch creates an empty file at each path given in args.
const Touch = `
local args = os.get_args()
for i = 1, #args do
    fs.write(args[i], "", nil)
end
`

// Rm removes each path given in args.
const Rm = `
local args = os.get_args()
for i = 1, #args do
    fs.rm(args[i])
end
`

// Sh is the interactive shell: reads one line at a time, forwards it to
// a running child if there is one, otherwise parses it as a new command
// and spawns it with stdout forwarding enabled.
const Sh = `
local child_pid = nil
while true do
  if child_pid then
    local st = os.process_status(child_pid)
    if st == "finished" or st == "not_found" then child_pid = nil end
  end
  local line = io.read()
  if line and line ~= "" then
    if child_pid then
      os.write_stdin(child_pid, line)
    else
      local t = os.parse_cmd(line)
      if t and t.program and t.program ~= "" then
        child_pid = os.spawn(t.program, t.args or {}, { forward_stdout = true })
      end
    end
  end
end
`

// EchoStdin reads one line from stdin and echoes it prefixed with
// "got:"; used to exercise the shell's forward-stdin path.
const EchoStdin = `
while true do
  local l = io.read()
  if l and l ~= "" then
    io.write("got:" .. l)
    break
  end
end
`

// SSH connects to host's port 22 and bridges stdin/stdout to it over an
// ephemeral connection.
const SSH = `
local args = os.get_args()
local server_arg = (args and args[1]) and args[1] or ""
if server_arg == "" then
  io.write("ssh: usage: ssh [user@]host\n")
  return
end
local host = server_arg
local at = string.find(server_arg, "@")
if at then
  host = string.sub(server_arg, at + 1)
end
local conn = net.connect(host, 22)
while true do
  local line = io.read()
  if line and line ~= "" then
    conn:send(line)
  end
  local r = conn:recv()
  if r then
    io.write(r.data)
  end
end
`

// SSHServer listens on port 22 and spawns one shell per distinct client,
// routing each client's packets to and from its own shell's stdin/stdout.
const SSHServer = `
net.listen(22)
local connections = {}
while true do
  local pkt = net.recv()
  if pkt and (tonumber(pkt.dst_port) or 0) == 22 then
    local key = pkt.src_ip .. ":" .. tostring(pkt.src_port)
    if not connections[key] then
      local pid = os.spawn("sh", {}, {})
      connections[key] = { pid = pid, src_ip = pkt.src_ip, src_port = pkt.src_port, last_sent = 0 }
    end
    if pkt.data and pkt.data ~= "" then
      os.write_stdin(connections[key].pid, pkt.data)
    end
  end
  local to_remove = {}
  for key, conn in pairs(connections) do
    local st = os.process_status(conn.pid)
    if st == "finished" or st == "not_found" then
      to_remove[#to_remove + 1] = key
    else
      local out = os.read_stdout(conn.pid)
      if out and #out > conn.last_sent then
        net.send(conn.src_ip, conn.src_port, out:sub(conn.last_sent + 1))
        conn.last_sent = #out
      end
    end
  end
  for i = 1, #to_remove do
    connections[to_remove[i]] = nil
  end
end
`

// Program names a default /bin entry and its source.
type Program struct {
	Name   string
	Source string
}

// Default is every /bin program a freshly bootstrapped VM starts with.
var Default = []Program{
	{"cat", Cat},
	{"echo", Echo},
	{"echo_stdin", EchoStdin},
	{"ls", Ls},
	{"rm", Rm},
	{"sh", Sh},
	{"ssh", SSH},
	{"ssh-server", SSHServer},
	{"touch", Touch},
}

// Lookup returns the source for a default /bin program by name.
func Lookup(name string) (string, bool) {
	for _, p := range Default {
		if p.Name == name {
			return p.Source, true
		}
	}
	return "", false
}
