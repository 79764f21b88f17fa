package mcpserver

// ConfigFormatContract describes the configuration JSON format that
// LLM consumers should follow when writing or editing configurations.
const ConfigFormatContract = `# Portapak Configuration Format Contract

Every configuration consumed by build_package MUST follow this structure.

## Structure

` + "```" + `json
{
  "app_name": "Acme",
  "directories": [
    {"source": "C:\\Program Files\\Acme\\App", "target": "Acme/App", "type": "program"},
    {"source": "C:\\Users\\bob\\AppData\\Roaming\\Acme", "target": "Roaming/Acme", "type": "data"}
  ],
  "files": [
    {"source": "C:\\ProgramData\\Acme\\acme.ini", "target": "acme.ini"}
  ],
  "registry_keys": [
    {"hive": "HKCU", "path": "Software\\Acme"}
  ],
  "services": [
    {"name": "AcmeSvc"}
  ],
  "scheduled_tasks": [
    {"name": "\\Acme\\Updater"}
  ],
  "shortcuts": [
    {"source": "C:\\Users\\Public\\Desktop\\Acme.lnk"}
  ]
}
` + "```" + `

## Rules

1. **app_name** defaults to "PortableApp" when empty; prefer a real name.
2. **Sources are absolute Windows paths** (drive-letter like ` + "`" + `C:\\...` + "`" + ` or UNC).
3. **Targets are relative paths** with ` + "`" + `/` + "`" + ` or ` + "`" + `\\` + "`" + ` separators. They must not
   be absolute and must not contain ` + "`" + `..` + "`" + ` segments.
4. **Targets must be unique** across directories and files (case-insensitive,
   separator-insensitive).
5. **Directory type** is ` + "`" + `program` + "`" + ` (binaries, under Program Files at restore)
   or ` + "`" + `data` + "`" + ` (profile or machine data, under AppData/ProgramData at restore).
6. **Registry hives** are the abbreviations HKLM, HKCU, HKCR, HKU, HKCC.
   The key path is relative to the hive and must be non-empty.
7. **Scheduled task names** keep their full folder form, e.g. ` + "`" + `\\Acme\\Updater` + "`" + `.
8. **Unknown fields are ignored** on load, so configurations written by newer
   tools still build.
`
